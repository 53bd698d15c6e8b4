package telemetry_pipeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	sdkName    = "roadrunner-telemetry-pipeline"
	sdkVersion = "1.0.0"
)

// sdkDescriptor is stamped into envelope headers and the User-Agent
var sdkDescriptor = &SDKDescriptor{Name: sdkName, Version: sdkVersion}

// TransportResponse is what the server answered. The transport decodes
// nothing beyond reading the body; delivery policy belongs to the caller.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports a 2xx status
func (r *TransportResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RateLimited reports a 429 status
func (r *TransportResponse) RateLimited() bool {
	return r.StatusCode == http.StatusTooManyRequests
}

// EventID decodes the event identifier from a success response body. The
// server returns it as 32-character lowercase hex without dashes; an absent
// or undecodable body on an otherwise successful status is a delivery error.
func (r *TransportResponse) EventID() (EventID, error) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return EventID{}, fmt.Errorf("undecodable response body: %w", err)
	}
	if payload.ID == "" {
		return EventID{}, fmt.Errorf("response body is missing the event id")
	}
	return ParseEventID(payload.ID)
}

// EnvelopeSender performs one HTTP POST of an encoded envelope. The retry
// policy on failure is owned by the Dispatcher, not the transport.
type EnvelopeSender interface {
	SendEnvelope(ctx context.Context, env *Envelope) (*TransportResponse, error)
}

// HTTPTransport handles HTTP communication with the ingestion endpoints
type HTTPTransport struct {
	config *TransportConfig
	dsn    *DSN
	client *http.Client
	logger *zap.Logger
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(config *TransportConfig, dsnStr string, logger *zap.Logger) (*HTTPTransport, error) {
	dsn, err := ParseDSN(dsnStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	// Configure proxy if specified
	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}

	return &HTTPTransport{
		config: config,
		dsn:    dsn,
		client: client,
		logger: logger,
	}, nil
}

// DSN returns the parsed connection descriptor
func (t *HTTPTransport) DSN() *DSN {
	return t.dsn
}

// SendEnvelope posts an envelope to the envelope endpoint. A returned error
// means the HTTP exchange itself failed (timeout, connection error,
// unreadable body); a non-2xx status is reported through the response, not
// as an error.
func (t *HTTPTransport) SendEnvelope(ctx context.Context, env *Envelope) (*TransportResponse, error) {
	body, err := env.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return t.post(ctx, t.dsn.EnvelopeURL, "application/x-sentry-envelope", body)
}

// SendEvent posts a single JSON-encoded event to the store endpoint. This is
// the request/response path used by synchronous callers.
func (t *HTTPTransport) SendEvent(ctx context.Context, event *Event) (*TransportResponse, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	return t.post(ctx, t.dsn.StoreURL, "application/json", body)
}

// post performs one HTTP POST and reads the full response
func (t *HTTPTransport) post(ctx context.Context, endpoint, contentType string, payload []byte) (*TransportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", sdkName+"/"+sdkVersion)
	req.Header.Set("X-Sentry-Auth", t.dsn.AuthHeader(time.Now()))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.logger.Debug("request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("payload_size", len(payload)))

	return &TransportResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close closes idle connections. An in-flight request is never cancelled; a
// half-sent request is worse than a late-returning one.
func (t *HTTPTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}
