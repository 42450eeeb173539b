package reqlog

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hearthd/hearthd/pkg/auth"
)

// statusRecorder captures the response status and size for the operation's
// response descriptor.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware assigns each request an operation id (the incoming
// X-Request-ID header, or a fresh UUID), echoes it on the response, and
// records the request and response descriptors in the store.
func (s *Store) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			opID := r.Header.Get(HeaderRequestID)
			if opID == "" {
				opID = uuid.NewString()
			}

			ctx := WithOperationID(r.Context(), opID)
			r = r.WithContext(ctx)
			w.Header().Set(HeaderRequestID, opID)

			s.SetRequestMetadata(opID, map[string]any{
				"method":  r.Method,
				"url":     r.URL.String(),
				"headers": auth.SanitizeHeaders(r.Header),
				"remote":  r.RemoteAddr,
			}, nil)

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			s.SetRequestMetadata(opID, nil, map[string]any{
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
