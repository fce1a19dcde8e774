// Package apiclient is the single path through which portal API calls pass.
// It attaches credentials, picks the body encoding, and normalises every
// failure into an *Error with a Kind.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/campus/portal/internal/infrastructure/credential"
	"github.com/campus/portal/internal/infrastructure/logger"
	"github.com/campus/portal/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the fixed per-request timeout.
const DefaultTimeout = 10 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Doer is the subset of Client used by the resource and session packages.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	RateLimit float64 // requests per second, <= 0 disables limiting
	RateBurst int
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request logs.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request metrics on m.
func WithMetrics(m *telemetry.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client sends requests to the portal REST API.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      credential.Store
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *telemetry.ClientMetrics

	mu      sync.RWMutex
	headers map[string]string
}

// New creates a client. creds may be nil for anonymous use.
func New(cfg Config, creds credential.Store, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "portal-client/1.0"
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:      creds,
		logger:     zap.NewNop(),
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": cfg.UserAgent,
		},
	}
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request is one API call. Path is relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// Decode unmarshals the body into dst. An empty body leaves dst untouched.
func (r *Response) Decode(dst interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 || dst == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Do sends req. Any non-2xx status, transport failure or non-JSON success
// body is returned as an *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	op := method + " " + req.Path
	requestID := uuid.NewString()

	ctx, span := telemetry.StartSpan(ctx, "apiclient.request",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrMethod, method),
		telemetry.WithAttribute(telemetry.SpanAttrPath, req.Path),
		telemetry.WithAttribute(telemetry.SpanAttrRequestID, requestID),
	)
	defer span.End()

	log := logger.FromContextOr(ctx, c.logger).With(zap.String("method", method), zap.String("path", req.Path), zap.String("request_id", requestID))

	start := time.Now()
	resp, err := c.do(ctx, method, op, requestID, req)
	duration := time.Since(start)

	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
		if kind == "" {
			kind = string(KindRequestFailed)
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, kind)
		telemetry.RecordError(span, err)
	}
	c.metrics.ObserveRequest(method, kind, duration)

	var apiErr *Error
	switch {
	case err == nil:
		telemetry.SetAttributes(span, telemetry.SpanAttrStatus, resp.StatusCode)
		log.Debug("Request completed",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", duration),
		)
	case errors.As(err, &apiErr) && apiErr.Status != 0:
		telemetry.SetAttributes(span, telemetry.SpanAttrStatus, apiErr.Status)
		log.Warn("Request failed",
			zap.Int("status", apiErr.Status),
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.String("message", apiErr.Message),
		)
	default:
		log.Warn("Request failed",
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}

	return resp, err
}

func (c *Client) do(ctx context.Context, method, op, requestID string, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, method, req)
	if err != nil {
		return nil, NewError(KindRequestFailed, op, "", err)
	}
	httpReq.Header.Set(RequestIDHeader, requestID)

	if c.creds != nil {
		pair, err := c.creds.Get(ctx)
		if err != nil {
			return nil, NewError(KindRequestFailed, op, "", fmt.Errorf("reading credentials: %w", err))
		}
		if pair.Access != "" {
			httpReq.Header.Set("Authorization", "Bearer "+pair.Access)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewError(KindNetworkUnreachable, op, "", err)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError(KindNetworkUnreachable, op, "", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewError(KindNetworkUnreachable, op, "", fmt.Errorf("reading response body: %w", err))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Duration:   time.Since(start),
		RequestID:  requestID,
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		if isHTML(httpResp.Header.Get("Content-Type"), body) {
			e := NewError(KindUnexpectedContentType, op, "", nil)
			e.Status = httpResp.StatusCode
			return nil, e
		}
		return resp, nil
	}

	kind := kindForStatus(httpResp.StatusCode)
	if kind == KindUnauthenticated {
		c.clearCredentials(ctx)
	}

	message := ""
	if kind != KindUnauthenticated {
		message = ExtractMessage(body)
	}
	e := NewError(kind, op, message, nil)
	e.Status = httpResp.StatusCode
	return nil, e
}

// newRequest builds the *http.Request with the encoded body.
func (c *Client) newRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var (
		bodyReader  io.Reader
		contentType string
	)
	switch {
	case req.Body == nil:
	case isMultipart(req.Body):
		buf, ct, err := encodeMultipart(req.Body)
		if err != nil {
			return nil, err
		}
		bodyReader, contentType = buf, ct
	default:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	c.mu.RLock()
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.mu.RUnlock()
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// buildURL joins the base URL and path, keeping any base path prefix.
func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("building URL: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// clearCredentials drops both tokens. The clear must land even when the
// caller's context is already cancelled.
func (c *Client) clearCredentials(ctx context.Context) {
	if c.creds == nil {
		return
	}
	if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("Failed to clear credentials after 401", zap.Error(err))
		return
	}
	c.metrics.CredentialsCleared()
}

// isHTML reports whether a success response carries an HTML page.
func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
				return true
			}
			if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
				return false
			}
		}
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(trimmed), "text/html")
}

// SetHeader sets a default header for all requests.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns the store the client reads tokens from.
func (c *Client) Credentials() credential.Store {
	return c.creds
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// DoJSON sends req and decodes a successful body into dst.
func (c *Client) DoJSON(ctx context.Context, req Request, dst interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(dst)
}
