package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/audit"
	"github.com/edgeberry/edgeberry-core/internal/auth"
	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/device"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/config"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/database"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Invoker sends a direct method to a device and waits for its reply.
// *bridge.Correlator implements it.
type Invoker interface {
	Invoke(ctx context.Context, deviceID, method, body string, timeout time.Duration) (*bridge.Response, error)
}

// RetainedReader reads the last retained message on a topic and returns
// bridge.ErrNotFound when there is none. bridge.Transport implements it.
type RetainedReader interface {
	FetchRetained(ctx context.Context, topic string) ([]byte, error)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client implements it.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Bridge   config.BridgeConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Invoker  Invoker
	Claims   *claim.Workflow
	Auth     *auth.Authenticator
	Audit    audit.Repository  // optional: audit endpoint returns 503 without it
	Recorder *audit.Recorder   // optional: direct method calls are recorded when set
	Retained RetainedReader    // optional: shadow and status endpoints return 503 without it
	Topics   bridge.Topics
	DB       *database.DB      // optional: pool stats in /metrics
	MQTT     ConnectionChecker // optional: broker status in /health and /metrics
	Hub      *Hub              // optional: created on Start when nil
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	bridgeCfg config.BridgeConfig
	logger    *logging.Logger
	registry  *device.Registry
	invoker   Invoker
	claims    *claim.Workflow
	auth      *auth.Authenticator
	auditRepo audit.Repository
	recorder  *audit.Recorder
	retained  RetainedReader
	topics    bridge.Topics
	db        *database.DB
	mqtt      ConnectionChecker
	hub       *Hub
	tickets   *ticketStore
	version   string
	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates an API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if deps.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if deps.Claims == nil {
		return nil, errors.New("claim workflow is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("authenticator is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		bridgeCfg: deps.Bridge,
		logger:    deps.Logger,
		registry:  deps.Registry,
		invoker:   deps.Invoker,
		claims:    deps.Claims,
		auth:      deps.Auth,
		auditRepo: deps.Audit,
		recorder:  deps.Recorder,
		retained:  deps.Retained,
		topics:    deps.Topics,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		hub:       deps.Hub,
		tickets:   newTicketStore(),
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the hub and the HTTP listener in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, OwnerLookup(s.registry))
	}
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// writeTimeout must outlast the longest direct method wait, or a
// claim's confirmation window would be cut off mid-request.
func (s *Server) writeTimeout() time.Duration {
	configured := time.Duration(s.cfg.Timeouts.Write) * time.Second
	floor := max(s.bridgeCfg.DefaultTimeout, maxDirectMethodTimeout) + 5*time.Second
	return max(configured, floor)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// OwnerLookup resolves device owners from the registry cache for Hub
// event scoping. Unknown devices have no owner.
func OwnerLookup(registry *device.Registry) func(deviceID string) string {
	return func(deviceID string) string {
		d, err := registry.GetDevice(context.Background(), deviceID)
		if err != nil {
			return ""
		}
		return d.OwnerID
	}
}
