// Package collaborator provides the HTTP client for the analysis collaborators.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/davidanoel/cognicare-sub000/internal/config"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/telemetry"
)

const maxResponseBytes = 10 << 20

// TokenIssuer mints the service token sent with each call.
type TokenIssuer interface {
	Issue(subject, audience string) (string, error)
}

// FailureSource tells where the message of an UpstreamError came from.
type FailureSource string

const (
	SourceJSON      FailureSource = "json"      // "error" or "message" field of a JSON body
	SourceText      FailureSource = "text"      // raw response body
	SourceStatus    FailureSource = "status"    // synthesized from the status code
	SourceTransport FailureSource = "transport" // no usable response
)

// UpstreamError is the normalized failure of a collaborator call.
type UpstreamError struct {
	Collaborator domain.Collaborator
	StatusCode   int // 0 when no response was received
	Message      string
	Source       FailureSource
	Err          error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s collaborator: %s", e.Collaborator, e.Message)
	}
	return fmt.Sprintf("%s collaborator returned status %d: %s", e.Collaborator, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Client calls collaborators over HTTP.
type Client struct {
	httpClient *http.Client
	cfg        config.CollaboratorsConfig
	tokens     TokenIssuer
	limiter    *rate.Limiter
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewClient creates a new collaborator client.
func NewClient(cfg config.CollaboratorsConfig, tokens TokenIssuer, metrics *telemetry.Metrics, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		// Per-call deadlines come from cfg.Timeout via the request context.
		httpClient: &http.Client{},
		cfg:        cfg,
		tokens:     tokens,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    metrics,
		tracer:     otel.Tracer("cognicare/collaborator"),
		logger:     logger,
	}
}

// Call posts payload to the named collaborator on behalf of callerID and returns its parsed
// success payload. Any failure is returned as *UpstreamError.
func (c *Client) Call(ctx context.Context, name domain.Collaborator, callerID string, payload interface{}) (*domain.CollaboratorResult, error) {
	ctx, span := c.tracer.Start(ctx, "collaborator."+string(name),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("collaborator", string(name))),
	)
	defer span.End()

	start := time.Now()
	result, err := c.call(ctx, name, callerID, payload)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("collaborator call failed",
			zap.String("collaborator", string(name)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("collaborator call succeeded",
			zap.String("collaborator", string(name)),
			zap.Duration("duration", elapsed),
		)
	}
	if c.metrics != nil {
		c.metrics.CollaboratorCallsTotal.WithLabelValues(string(name), outcome).Inc()
		c.metrics.CollaboratorCallDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
	}
	return result, err
}

func (c *Client) call(ctx context.Context, name domain.Collaborator, callerID string, payload interface{}) (*domain.CollaboratorResult, error) {
	fail := func(status int, msg string, cause error) error {
		return &UpstreamError{Collaborator: name, StatusCode: status, Message: msg, Source: SourceTransport, Err: cause}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fail(0, "failed to encode request", err)
	}

	token, err := c.tokens.Issue(callerID, string(name))
	if err != nil {
		return nil, fail(0, "failed to mint service token", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fail(0, "rate limited", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CollaboratorURL(string(name)), bytes.NewReader(body))
	if err != nil {
		return nil, fail(0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if id := RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fail(0, "request timed out", err)
		}
		return nil, fail(0, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if readErr != nil {
			respBody = nil
		}
		return nil, ClassifyFailure(name, resp.StatusCode, respBody)
	}
	if readErr != nil {
		return nil, fail(resp.StatusCode, "failed to read response", readErr)
	}

	var result domain.CollaboratorResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fail(resp.StatusCode, "invalid response body", err)
	}
	return &result, nil
}

// ClassifyFailure builds the error for a non-success response. The message is the "error" or
// "message" field of a JSON body, else the body text, else a message naming only the status.
func ClassifyFailure(name domain.Collaborator, status int, body []byte) *UpstreamError {
	e := &UpstreamError{Collaborator: name, StatusCode: status}

	var parsed struct {
		Error   interface{} `json:"error"`
		Message interface{} `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if msg := messageText(parsed.Error); msg != "" {
			e.Message, e.Source = msg, SourceJSON
			return e
		}
		if msg := messageText(parsed.Message); msg != "" {
			e.Message, e.Source = msg, SourceJSON
			return e
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		e.Message, e.Source = text, SourceText
		return e
	}
	e.Message, e.Source = fmt.Sprintf("Request failed with status %d", status), SourceStatus
	return e
}

func messageText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

type requestIDKey struct{}

// ContextWithRequestID returns a context carrying the inbound request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
