package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a server reply the CLI reads.
const maxResponseBytes = 1 << 20

// errNoCredentials is returned when neither a token nor a username is set.
var errNoCredentials = errors.New("no credentials: set --token or --user/--password")

// apiError is the structured error body the server returns.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// apiClient talks to the Edgeberry REST API.
type apiClient struct {
	base     string
	token    string
	username string
	password string
	http     *http.Client
}

func newAPIClient(server string, timeout time.Duration) (*apiClient, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q must use http or https", server)
	}
	return &apiClient{
		base: u.String(),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// ensureToken logs in with username and password unless a token is
// already set.
func (c *apiClient) ensureToken(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.username == "" {
		return errNoCredentials
	}

	var session struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": c.username, "password": c.password}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", body, &session); err != nil {
		return fmt.Errorf("logging in as %s: %w", c.username, err)
	}
	if session.AccessToken == "" {
		return errors.New("logging in: server returned no token")
	}
	c.token = session.AccessToken
	return nil
}

// directMethod mirrors the server's direct method request body.
type directMethod struct {
	DeviceID   string `json:"deviceId"`
	MethodName string `json:"methodName"`
	MethodBody string `json:"methodBody,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

// Invoke sends a direct method and returns the device's raw response.
func (c *apiClient) Invoke(ctx context.Context, req directMethod) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/api/v1/things/directmethod", req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Claim asks the server to run the claim workflow for deviceID.
func (c *apiClient) Claim(ctx context.Context, deviceID string) (json.RawMessage, error) {
	return c.authed(ctx, http.MethodPost, "/api/v1/things/"+url.PathEscape(deviceID)+"/claim")
}

// Release gives up ownership of deviceID.
func (c *apiClient) Release(ctx context.Context, deviceID string) (json.RawMessage, error) {
	return c.authed(ctx, http.MethodPost, "/api/v1/things/"+url.PathEscape(deviceID)+"/release")
}

// List returns the devices owned by the caller.
func (c *apiClient) List(ctx context.Context) (json.RawMessage, error) {
	return c.authed(ctx, http.MethodGet, "/api/v1/things")
}

func (c *apiClient) authed(ctx context.Context, method, path string) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.call(ctx, method, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// call performs one request and decodes a 2xx JSON reply into out.
func (c *apiClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
