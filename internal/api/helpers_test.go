package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/audit"
	"github.com/edgeberry/edgeberry-core/internal/auth"
	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/bridge/bridgetest"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/device"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/config"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/database"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/logging"
	_ "github.com/edgeberry/edgeberry-core/migrations"
)

const (
	testSecret = "test-secret-key-at-least-32-characters-long"

	unclaimedDevice = "EB-0001"
	aliceDevice     = "EB-0002"

	claimTimeout = 300 * time.Millisecond
)

var cheapHash = auth.HashParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// testEnv is a fully wired server over in-memory SQLite and an in-memory broker.
type testEnv struct {
	srv       *Server
	router    http.Handler
	registry  *device.Registry
	transport *bridgetest.Transport
	auditRepo *audit.SQLiteRepository
	recorder  *audit.Recorder
	users     *auth.SQLiteUserRepository
	logs      *syncBuffer

	alice, bob, admin *auth.User
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	env := &testEnv{
		registry:  device.NewRegistry(device.NewSQLiteRepository(db.DB)),
		transport: bridgetest.New(""),
		auditRepo: audit.NewSQLiteRepository(db.DB),
		users:     auth.NewUserRepository(db.DB),
		logs:      &syncBuffer{},
	}
	env.alice = createUser(t, env.users, "alice", auth.RoleUser)
	env.bob = createUser(t, env.users, "bob", auth.RoleUser)
	env.admin = createUser(t, env.users, "root", auth.RoleAdmin)

	for _, id := range []string{unclaimedDevice, aliceDevice} {
		if err := env.registry.Onboard(ctx, &device.Device{ID: id, Name: "Unit " + id}); err != nil {
			t.Fatalf("Onboard(%s) error = %v", id, err)
		}
	}
	if err := env.registry.SetOwner(ctx, aliceDevice, env.alice.ID); err != nil {
		t.Fatalf("SetOwner() error = %v", err)
	}

	log := logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", env.logs)
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log, OwnerLookup(env.registry))
	go hub.Run(ctx)

	env.recorder = audit.NewRecorder(env.auditRepo, "api", 0)
	go env.recorder.Run(ctx)

	corr := bridge.NewCorrelator(env.transport, bridge.Options{
		PollInterval: 20 * time.Millisecond,
		Observer:     bridge.Observers{hub, env.recorder},
	})
	if err := corr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	workflow := claim.New(corr, env.registry, claim.Options{
		Timeout:   claimTimeout,
		Observers: []claim.Observer{hub, env.recorder},
	})

	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:       wsCfg,
		Logger:   log,
		Registry: env.registry,
		Invoker:  corr,
		Claims:   workflow,
		Auth:     auth.NewAuthenticator(env.users, testSecret, time.Minute),
		Audit:    env.auditRepo,
		Recorder: env.recorder,
		Retained: env.transport,
		DB:       db,
		Hub:      hub,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.router = env.srv.buildRouter()

	t.Cleanup(func() {
		corr.Close()
		cancel()
		env.recorder.Wait()
		db.Close()
	})
	return env
}

func createUser(t *testing.T, repo auth.UserRepository, username string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := cheapHash.Hash(username + "-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	u := &auth.User{Username: username, DisplayName: username, PasswordHash: hash, Role: role, IsActive: true}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	return u
}

func tokenFor(t *testing.T, u *auth.User) string {
	t.Helper()
	token, err := auth.IssueToken(u, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

// do sends a request as user (nil for anonymous) and returns the recorder.
func (e *testEnv) do(t *testing.T, user *auth.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doCtx(t, context.Background(), user, method, path, body)
}

// doCtx is do with a request context the test controls.
func (e *testEnv) doCtx(t *testing.T, ctx context.Context, user *auth.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequestWithContext(ctx, method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) user(username string) *auth.User {
	switch username {
	case "alice":
		return e.alice
	case "bob":
		return e.bob
	case "root":
		return e.admin
	}
	return nil
}

func (e *testEnv) owner(t *testing.T, id string) string {
	t.Helper()
	owner, err := e.registry.GetOwner(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOwner(%s) error = %v", id, err)
	}
	return owner
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func okReply(_ string, cmd bridge.CommandPayload) []byte {
	return bridgetest.Reply(cmd.RequestID, 200, "ok")
}
