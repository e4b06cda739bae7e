// Edgeberry Core - device command bridge and ownership service.
//
// This is the main entry point. It connects to the MQTT broker, serves the
// REST and WebSocket API, and carries direct method calls between users and
// the devices they own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/edgeberry/edgeberry-core/migrations"

	"github.com/edgeberry/edgeberry-core/internal/api"
	"github.com/edgeberry/edgeberry-core/internal/audit"
	"github.com/edgeberry/edgeberry-core/internal/auth"
	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/bridge/mqttbridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/device"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/config"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/database"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/influxdb"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/logging"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/mqtt"
	"github.com/edgeberry/edgeberry-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "EDGEBERRY_CONFIG"

	// auditQueueSize bounds audit entries waiting for the writer goroutine.
	auditQueueSize = 256
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Edgeberry Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	stats := registry.GetStats()
	log.Info("device registry initialised",
		"devices", stats.TotalDevices,
		"claimed", stats.Claimed,
	)

	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin user: %w", seedErr)
	}
	authenticator := auth.NewAuthenticator(users, cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute)

	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Site.Namespace)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"namespace", cfg.Site.Namespace,
	)

	var influxClient *influxdb.Client
	sink := telemetry.NewSink(nil)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sink = telemetry.NewSink(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, "edgeberry-core", auditQueueSize)
	recorder.SetLogger(log.Component("audit"))
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	go recorder.Run(recorderCtx)
	defer func() {
		stopRecorder()
		recorder.Wait()
	}()

	// The hub observes the correlator and the claim workflow, so it has to
	// exist before either of them.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"), api.OwnerLookup(registry))

	transport := mqttbridge.New(mqttClient, cfg.Bridge.FetchWindow)
	correlator := bridge.NewCorrelator(transport, bridge.Options{
		Namespace:      cfg.Site.Namespace,
		DefaultTimeout: cfg.Bridge.DefaultTimeout,
		PollInterval:   cfg.Bridge.PollInterval,
		MessageExpiry:  cfg.Bridge.MessageExpiry,
		Strategy:       bridge.Strategy(cfg.Bridge.Strategy),
		ClearOnTimeout: cfg.Bridge.ClearOnTimeout,
		Logger:         log.Component("bridge"),
		Observer:       bridge.Observers{hub, recorder, sink},
	})
	if startErr := correlator.Start(); startErr != nil {
		return fmt.Errorf("starting command bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping command bridge")
		if closeErr := correlator.Close(); closeErr != nil {
			log.Error("error stopping command bridge", "error", closeErr)
		}
	}()
	log.Info("command bridge started",
		"strategy", cfg.Bridge.Strategy,
		"default_timeout", cfg.Bridge.DefaultTimeout,
	)

	claims := claim.New(correlator, registry, claim.Options{
		ConfirmMethod: cfg.Claim.ConfirmMethod,
		Timeout:       cfg.Claim.Timeout,
		Logger:        log.Component("claim"),
		Observers:     []claim.Observer{hub, recorder, sink},
	})

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Bridge:   cfg.Bridge,
		Logger:   log.Component("api"),
		Registry: registry,
		Invoker:  correlator,
		Claims:   claims,
		Auth:     authenticator,
		Audit:    auditRepo,
		Recorder: recorder,
		Retained: transport,
		Topics:   bridge.Topics{Namespace: cfg.Site.Namespace},
		DB:       db,
		MQTT:     mqttClient,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		log.Warn("initial health check failed", "error", healthErr)
	} else {
		log.Info("all services healthy")
	}

	log.Info("Edgeberry Core started successfully")

	<-ctx.Done()
	log.Info("shutdown signal received, stopping services...")

	return nil
}

// getConfigPath returns the configuration file path, honouring
// EDGEBERRY_CONFIG when set.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the backing services respond. influxClient may be
// nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
