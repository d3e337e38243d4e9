// Package api is the JSON request helper shared by every PredictX endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/predizer/predictx-client/pkg/errors"
	"github.com/predizer/predictx-client/pkg/httpclient"
	"github.com/predizer/predictx-client/pkg/logger"
	"github.com/predizer/predictx-client/pkg/tracing"
)

// IdempotencyHeader carries a client-generated key on mutating requests.
const IdempotencyHeader = "Idempotency-Key"

// CorrelationHeader carries the correlation ID of the calling operation.
const CorrelationHeader = "X-Correlation-ID"

const maxResponseBody = 4 << 20

// Request describes one call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	// Body is encoded as JSON when non-nil.
	Body   any
	Header http.Header
	// Idempotent attaches a fresh Idempotency-Key, which also makes a POST
	// eligible for transport retries.
	Idempotent bool
}

// Client sends JSON requests to the PredictX REST backend.
type Client struct {
	baseURL string
	doer    httpclient.Doer
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a Client. A trailing slash on baseURL is ignored.
func New(baseURL string, doer httpclient.Doer, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  log,
		tracer:  tracing.Tracer("github.com/predizer/predictx-client/internal/api"),
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req and returns the response body, unwrapped from a {"data": ...}
// envelope when present. An empty body yields nil. Non-2xx responses become
// *apperrors.APIError; requests that never got a response become network
// errors with status 0.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()
	log := logger.WithContext(ctx, c.logger)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.doer.Do(ctx, httpReq)
	if err != nil {
		observe(req.Method, apperrors.CodeNetwork, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		log.WarnContext(ctx, "api request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Network(err)
	}

	status := strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	observe(req.Method, status, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := httpclient.ParseResponseError(resp)
		span.SetStatus(codes.Error, apiErr.Error())
		log.DebugContext(ctx, "api request rejected",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Network(fmt.Errorf("read response body: %w", err))
	}

	log.DebugContext(ctx, "api request completed",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return unwrap(body)
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("encode request body: %v", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("build request: %v", err))
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		httpReq.Header.Set(CorrelationHeader, id)
	}
	if req.Idempotent && httpReq.Header.Get(IdempotencyHeader) == "" {
		httpReq.Header.Set(IdempotencyHeader, NewIdempotencyKey())
	}
	return httpReq, nil
}

// unwrap returns the "data" member of an envelope object, or the body itself.
func unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode response: body is not JSON")
	}
	if body[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err == nil {
			if data, ok := envelope["data"]; ok {
				return data, nil
			}
		}
	}
	return json.RawMessage(body), nil
}

// NewIdempotencyKey returns a random UUID, falling back to a timestamp plus
// random suffix when the system random source is unavailable.
func NewIdempotencyKey() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%d-%016x", time.Now().UnixNano(), rand.Uint64())
}

// WithBearer returns a copy of h with an Authorization header for token. An
// empty token leaves the header out.
func WithBearer(h http.Header, token string) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	out.Del("Authorization")
	if token != "" {
		out.Set("Authorization", "Bearer "+token)
	}
	return out
}
