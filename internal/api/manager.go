// Package api implements the resilient backend access layer: a
// request-scoped session manager with token bootstrap and retry-on-expiry,
// plus the search and single-document fetchers built on top of it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/config"
	"github.com/adsabs/adscore/internal/metrics"
)

// Result is the JSON-like payload backend services return. Soft errors
// travel inside it under the "error" key.
type Result map[string]any

// forwardedHeaders are propagated from the inbound request to the backend
// when the shared connection pool is bypassed, so the backend still sees
// the original caller.
var forwardedHeaders = []string{
	"X-Original-Uri",
	"X-Original-Forwarded-For",
	"X-Forwarded-For",
	"X-Amzn-Trace-Id",
}

// Manager owns the authentication token and cookie jar for one inbound
// request. It is not safe for concurrent use; construct one per request.
type Manager struct {
	cfg     config.Config
	client  *http.Client
	logger  *zap.Logger
	auth    AuthToken
	cookies map[string]string
	forward http.Header
}

// NewManager builds a request-scoped Manager. client may be shared across
// managers (the outbound pool); nil builds a dedicated one. forward holds
// the inbound request's headers for trace propagation when the pool is
// disabled.
func NewManager(cfg config.Config, client *http.Client, forward http.Header, logger *zap.Logger) *Manager {
	if client == nil {
		client = NewHTTPClient(cfg.APITimeout())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		cookies: map[string]string{},
		forward: forward,
	}
}

// NewHTTPClient builds the outbound client: bounded timeout, redirects
// not followed (the backend's redirects carry cookies the jar must see).
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Auth returns the currently held token.
func (m *Manager) Auth() AuthToken {
	return m.auth
}

// SetAuth seeds the manager with a token, typically a synthetic bot tier
// or a token recovered from the client's session.
func (m *Manager) SetAuth(auth AuthToken) {
	m.auth = auth
}

// Cookies returns the jar for the request boundary to persist. The
// returned map is live; callers must not retain it past the request.
func (m *Manager) Cookies() map[string]string {
	return m.cookies
}

// SetCookie replays a client-held cookie on subsequent backend calls.
func (m *Manager) SetCookie(name, value string) {
	m.cookies[name] = value
}

// EnsureAuth bootstraps a token when none is held or the held one has
// expired.
func (m *Manager) EnsureAuth(ctx context.Context) error {
	if m.auth.Empty() || m.auth.Expired() {
		return m.Bootstrap(ctx)
	}
	return nil
}

// Bootstrap fetches an anonymous token. The existing session cookies ride
// along, so an authenticated upstream session yields the same token back.
// A bootstrap response missing the token or expiry is a configuration
// fault and aborts with a 500-class error; retrying cannot help.
func (m *Manager) Bootstrap(ctx context.Context) error {
	// Never bootstrap with a stale bearer attached.
	m.auth = AuthToken{}
	res, err := m.Request(ctx, m.cfg.Service(config.BootstrapService), nil, http.MethodGet, nil, 0, true)
	if err != nil {
		return err
	}
	token, okToken := res["access_token"].(string)
	// The accounts service issues expire_in as a string timestamp;
	// tolerate a numeric value rather than rejecting the whole token.
	expireIn := ""
	if v, ok := res["expire_in"]; ok && v != nil {
		if s, isString := v.(string); isString {
			expireIn = s
		} else {
			expireIn = fmt.Sprint(v)
		}
	}
	if !okToken || token == "" || expireIn == "" {
		return &StatusError{Code: http.StatusInternalServerError, Message: "bootstrap returned invalid data"}
	}
	m.logger.Info("bootstrapped access token", zap.String("access_token", token))
	m.auth = AuthToken{AccessToken: token, ExpireIn: expireIn}
	metrics.ObserveBootstrap()
	return nil
}

// Request performs one backend call with the uniform failure semantics:
// transport errors retried once then fatal (502); a 401 on the first
// attempt re-bootstraps and retries once unless the identity is a bot
// token; 401/429/5xx surviving that escalate as StatusError; other
// non-2xx statuses come back as soft error Results. When jsonFormat is
// false the response body is discarded (fire-and-forget calls).
//
// params is url.Values for GET and a JSON-marshalable body for POST.
func (m *Manager) Request(ctx context.Context, endpoint string, params any, method string, headers http.Header, retryCount int, jsonFormat bool) (Result, error) {
	req, err := m.buildRequest(ctx, endpoint, params, method, headers)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("dispatching backend request",
		zap.String("method", method), zap.String("url", req.URL.String()))
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Error("backend connection failed", zap.String("url", req.URL.String()), zap.Error(err))
		if retryCount == 0 {
			m.logger.Info("re-trying backend connection", zap.String("url", req.URL.String()))
			return m.Request(ctx, endpoint, params, method, headers, retryCount+1, jsonFormat)
		}
		return nil, &StatusError{Code: http.StatusBadGateway, Message: "backend unreachable"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StatusError{Code: http.StatusBadGateway, Message: "reading backend response"}
	}
	metrics.ObserveBackendRequest(method, resp.StatusCode)
	m.logger.Debug("received backend response",
		zap.String("url", req.URL.String()), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && m.canRebootstrap(endpoint, retryCount) {
			// Re-try only once, bootstrapping a new token.
			if err := m.Bootstrap(ctx); err != nil {
				return nil, err
			}
			m.logger.Info("re-trying backend call after bootstrapping")
			return m.Request(ctx, endpoint, params, method, headers, retryCount+1, jsonFormat)
		}
		if resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500 {
			return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
		}
		msg := errorMessage(body)
		m.logger.Debug("backend call ended with error envelope",
			zap.String("url", req.URL.String()), zap.String("msg", msg))
		return softError(msg, resp.StatusCode), nil
	}

	m.foldCookies(resp.Cookies())

	if !jsonFormat {
		return Result{}, nil
	}
	var results Result
	if err := json.Unmarshal(body, &results); err != nil {
		m.logger.Error("backend response is not JSON",
			zap.String("url", req.URL.String()), zap.Error(err))
		return Result{"error": fmt.Sprintf("Response is not JSON compatible: %s", body)}, nil
	}
	return results, nil
}

// canRebootstrap reports whether a 401 may be answered with a fresh
// token: only on the first attempt, never for a bot identity, and never
// for the bootstrap call itself, which would otherwise recurse without
// bound while the accounts service rejects it.
func (m *Manager) canRebootstrap(endpoint string, retryCount int) bool {
	if retryCount != 0 || m.auth.Bot {
		return false
	}
	return endpoint != m.cfg.Service(config.BootstrapService)
}

func (m *Manager) buildRequest(ctx context.Context, endpoint string, params any, method string, headers http.Header) (*http.Request, error) {
	var (
		target = endpoint
		body   io.Reader
	)
	if method == http.MethodGet {
		if values, ok := params.(url.Values); ok && len(values) > 0 {
			target = endpoint + "?" + values.Encode()
		}
	} else if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if !m.auth.Empty() {
		req.Header.Set("Authorization", "Bearer:"+m.auth.AccessToken)
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !m.cfg.API.PoolEnabled {
		// Propagate key information from the original request.
		for _, name := range forwardedHeaders {
			value := "-"
			if m.forward != nil {
				if v := m.forward.Get(name); v != "" {
					value = v
				}
			}
			req.Header.Set(name, value)
		}
	}
	for name, value := range m.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

// foldCookies prunes expired cookies from a response and merges the rest
// into the jar, in response order.
func (m *Manager) foldCookies(cookies []*http.Cookie) {
	now := time.Now()
	for _, ck := range cookies {
		if ck.MaxAge < 0 || (!ck.Expires.IsZero() && ck.Expires.Before(now)) {
			delete(m.cookies, ck.Name)
			continue
		}
		m.cookies[ck.Name] = ck.Value
	}
}
