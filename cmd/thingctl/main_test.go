package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ===== Fake API =====

type fakeAPI struct {
	mu       sync.Mutex
	logins   int
	requests []recordedRequest
	// replies maps "METHOD path" to a status and body.
	replies map[string]fakeReply
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeReply struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{replies: map[string]fakeReply{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	_ = json.NewDecoder(r.Body).Decode(&rec.Body)

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	reply, ok := f.replies[r.Method+" "+r.URL.Path]
	if r.URL.Path == "/api/v1/auth/login" {
		f.logins++
	}
	f.mu.Unlock()

	if r.URL.Path == "/api/v1/auth/login" && !ok {
		if rec.Body["password"] != "secret" {
			reply = fakeReply{401, `{"status":401,"code":"unauthorised","message":"invalid username or password"}`}
		} else {
			reply = fakeReply{200, `{"access_token":"tok-from-login","token_type":"Bearer","expires_in":900}`}
		}
		ok = true
	}
	if !ok {
		reply = fakeReply{404, `{"status":404,"code":"not_found","message":"no route"}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

func (f *fakeAPI) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{envServer, envToken, envUser, envPassword} {
		t.Setenv(key, "")
	}
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ===== Invoke =====

func TestInvoke_SendsDirectMethod(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/directmethod"] = fakeReply{200, `{"requestId":"abc","status":200,"message":"ok"}`}

	out, err := execute(t, "", "--server", srv.URL, "--token", "tok",
		"invoke", "EB-0001", "identify", `{"blink":3}`, "--timeout", "2s")
	if err != nil {
		t.Fatalf("invoke error = %v", err)
	}

	req := api.last()
	if req.Auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", req.Auth)
	}
	if req.Body["deviceId"] != "EB-0001" || req.Body["methodName"] != "identify" {
		t.Errorf("body = %v", req.Body)
	}
	if req.Body["methodBody"] != `{"blink":3}` {
		t.Errorf("methodBody = %v, want the raw string", req.Body["methodBody"])
	}
	if req.Body["timeout"] != float64(2) {
		t.Errorf("timeout = %v, want 2 seconds", req.Body["timeout"])
	}
	if !strings.Contains(out, `"requestId": "abc"`) {
		t.Errorf("output = %q, want indented device response", out)
	}
}

func TestInvoke_BodyFromStdin(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/directmethod"] = fakeReply{200, `{"requestId":"abc"}`}

	if _, err := execute(t, "hello device\n", "--server", srv.URL, "--token", "tok",
		"invoke", "EB-0001", "echo", "-"); err != nil {
		t.Fatalf("invoke error = %v", err)
	}
	if got := api.last().Body["methodBody"]; got != "hello device" {
		t.Errorf("methodBody = %v, want stdin contents", got)
	}
}

func TestInvoke_OmitsTimeoutWhenUnset(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/directmethod"] = fakeReply{200, `{"requestId":"abc"}`}

	if _, err := execute(t, "", "--server", srv.URL, "--token", "tok", "invoke", "EB-0001", "reboot"); err != nil {
		t.Fatalf("invoke error = %v", err)
	}
	body := api.last().Body
	if _, ok := body["timeout"]; ok {
		t.Errorf("timeout sent = %v, want omitted", body["timeout"])
	}
	if _, ok := body["methodBody"]; ok {
		t.Errorf("methodBody sent = %v, want omitted", body["methodBody"])
	}
}

func TestInvoke_DeviceTimeout(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/directmethod"] = fakeReply{504,
		`{"status":504,"code":"device_timeout","message":"device did not respond in time"}`}

	_, err := execute(t, "", "--server", srv.URL, "--token", "tok", "invoke", "EB-0001", "reboot")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *apiError", err)
	}
	if apiErr.Code != "device_timeout" {
		t.Errorf("code = %q, want device_timeout", apiErr.Code)
	}
	if exitCode(err) != 6 {
		t.Errorf("exitCode = %d, want 6", exitCode(err))
	}
}

func TestInvoke_Arguments(t *testing.T) {
	_, srv := newFakeAPI(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing method", []string{"invoke", "EB-0001"}},
		{"too many", []string{"invoke", "a", "b", "c", "d"}},
		{"negative timeout", []string{"invoke", "EB-0001", "x", "--timeout=-1s"}},
		{"sub-second timeout", []string{"invoke", "EB-0001", "x", "--timeout=1500ms"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--server", srv.URL, "--token", "tok"}, tt.args...)
			if _, err := execute(t, "", args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ===== Claim and release =====

func TestClaim_LogsInWithPassword(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/EB-0001/claim"] = fakeReply{200, `{"action":"claim","outcome":"claimed"}`}

	out, err := execute(t, "", "--server", srv.URL, "--user", "alice", "--password", "secret", "claim", "EB-0001")
	if err != nil {
		t.Fatalf("claim error = %v", err)
	}
	if n := api.loginCount(); n != 1 {
		t.Errorf("logins = %d, want 1", n)
	}
	if got := api.last().Auth; got != "Bearer tok-from-login" {
		t.Errorf("Authorization = %q, want token from login", got)
	}
	if !strings.Contains(out, `"outcome": "claimed"`) {
		t.Errorf("output = %q", out)
	}
}

func TestClaim_Conflict(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/EB-0002/claim"] = fakeReply{409,
		`{"status":409,"code":"conflict","message":"device is already claimed"}`}

	_, err := execute(t, "", "--server", srv.URL, "--token", "tok", "claim", "EB-0002")
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 5 {
		t.Errorf("exitCode = %d, want 5", exitCode(err))
	}
	if !strings.Contains(err.Error(), "already claimed") {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestClaim_BadPassword(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, err := execute(t, "", "--server", srv.URL, "--user", "alice", "--password", "wrong", "claim", "EB-0001")
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 3 {
		t.Errorf("exitCode = %d, want 3", exitCode(err))
	}
}

func TestRelease_EscapesDeviceID(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["POST /api/v1/things/EB 7/release"] = fakeReply{200, `{"action":"release","outcome":"released"}`}

	if _, err := execute(t, "", "--server", srv.URL, "--token", "tok", "release", "EB 7"); err != nil {
		t.Fatalf("release error = %v", err)
	}
	if got := api.last().Path; got != "/api/v1/things/EB 7/release" {
		t.Errorf("path = %q", got)
	}
}

func TestList(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.replies["GET /api/v1/things"] = fakeReply{200, `{"devices":[],"count":0}`}

	out, err := execute(t, "", "--server", srv.URL, "--token", "tok", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, `"count": 0`) {
		t.Errorf("output = %q", out)
	}
}

// ===== Client =====

func TestClient_NoCredentials(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, err := execute(t, "", "--server", srv.URL, "--token", "", "--user", "", "list")
	if !errors.Is(err, errNoCredentials) {
		t.Errorf("error = %v, want errNoCredentials", err)
	}
}

func TestNewAPIClient_RejectsScheme(t *testing.T) {
	if _, err := newAPIClient("ftp://example.com", 0); err == nil {
		t.Error("expected error for ftp scheme")
	}
	cl, err := newAPIClient("http://example.com/", 0)
	if err != nil {
		t.Fatalf("newAPIClient error = %v", err)
	}
	if cl.base != "http://example.com" {
		t.Errorf("base = %q, want trailing slash trimmed", cl.base)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, "", "--server", srv.URL, "--token", "tok", "list")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), 1},
		{&apiError{Status: 400}, 2},
		{&apiError{Status: 401}, 3},
		{&apiError{Status: 403}, 3},
		{&apiError{Status: 404}, 4},
		{&apiError{Status: 409}, 5},
		{&apiError{Status: 502}, 6},
		{&apiError{Status: 504}, 6},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
