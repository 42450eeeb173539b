package reqlog

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthd/hearthd/pkg/auth"
)

// bodyLogLimit bounds how much of a request or response body lands in the
// trace.
const bodyLogLimit = 2048

// LoggedClient wraps an HTTP client so every outbound call is traced under
// the caller's operation id: start, end, and failure events with method,
// URL, duration, sanitized headers, and truncated bodies.
type LoggedClient struct {
	client *http.Client
	store  *Store
	logger *slog.Logger
}

// NewLoggedClient wraps client; a nil client uses http.DefaultClient.
func NewLoggedClient(client *http.Client, store *Store, logger *slog.Logger) *LoggedClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedClient{
		client: client,
		store:  store,
		logger: logger.With("component", "http_client"),
	}
}

// Do executes the request, attaching the operation id from the request
// context as X-Request-ID and recording the exchange. The response body is
// read for the trace and restored so callers consume it normally.
func (c *LoggedClient) Do(req *http.Request) (*http.Response, error) {
	opID := OperationIDFrom(req.Context())
	if opID != "" && req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, opID)
	}

	var requestBody string
	if req.Body != nil && req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			requestBody = readTruncated(rc)
		}
	}

	c.store.Log(opID, "info", "http.request.start", map[string]any{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": auth.SanitizeHeaders(req.Header),
		"body":    requestBody,
	})

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.store.Log(opID, "error", "http.request.error", map[string]any{
			"method":      req.Method,
			"url":         req.URL.String(),
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		})
		c.logger.Warn("outbound request failed",
			"method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}

	// Read the body for the trace and hand the caller a replacement reader.
	var responseBody string
	if resp.Body != nil {
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr == nil {
			resp.Body = io.NopCloser(bytes.NewReader(raw))
			responseBody = truncate(string(raw))
		}
	}

	c.store.Log(opID, "info", "http.request.end", map[string]any{
		"method":      req.Method,
		"url":         req.URL.String(),
		"status":      resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
		"headers":     auth.SanitizeHeaders(resp.Header),
		"body":        responseBody,
	})
	return resp, nil
}

func readTruncated(rc io.ReadCloser) string {
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, bodyLogLimit+1))
	if err != nil {
		return ""
	}
	return truncate(string(raw))
}

func truncate(s string) string {
	if len(s) > bodyLogLimit {
		return s[:bodyLogLimit] + "…(truncated)"
	}
	return s
}
