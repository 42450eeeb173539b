// Package gateway materializes the HTTP registry into live chi routes. Each
// route is a generic handler that marshals path, query, and body into a
// service call, and the gateway is the single place where errors become
// HTTP status codes.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/reqlog"
	"github.com/hearthd/hearthd/pkg/services"
)

// maxBodyBytes bounds request bodies accepted by generic handlers.
const maxBodyBytes = 1 << 20

var pathParamPattern = regexp.MustCompile(`\{([^}/]+)\}`)

// Gateway serves the registered HTTP contracts.
type Gateway struct {
	services      *services.Registry
	httpReg       *httpreg.Registry
	requests      *reqlog.Store
	authenticator *auth.Authenticator
	logger        *slog.Logger
	metrics       *Metrics
	production    bool
	corsOrigins   []string
}

// Options configures a Gateway.
type Options struct {
	Services      *services.Registry
	HTTPRegistry  *httpreg.Registry
	Requests      *reqlog.Store
	Authenticator *auth.Authenticator
	Logger        *slog.Logger
	Metrics       *Metrics
	Production    bool
	CORSOrigins   []string
}

// New creates a gateway over the kernel's registries.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		services:      opts.Services,
		httpReg:       opts.HTTPRegistry,
		requests:      opts.Requests,
		authenticator: opts.Authenticator,
		logger:        logger.With("component", "gateway"),
		metrics:       opts.Metrics,
		production:    opts.Production,
		corsOrigins:   opts.CORSOrigins,
	}
}

// BuildRouter snapshots the HTTP registry and materializes one route per
// endpoint, wrapped in the kernel middleware stack. Endpoints registered
// after the snapshot require a rebuild.
func (g *Gateway) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if g.requests != nil {
		r.Use(g.requests.Middleware())
	}
	r.Use(g.securityHeaders)
	if len(g.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   g.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", reqlog.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if g.authenticator != nil {
		r.Use(g.authenticator.Middleware())
	}
	if g.metrics != nil {
		r.Use(g.metrics.Middleware)
	}

	if g.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Liveness probe. Ungated: container orchestrators poll it without
	// credentials.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		g.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	for _, ep := range g.httpReg.List() {
		r.Method(ep.Method, ep.Path, g.handlerFor(ep))
		g.logger.Debug("route mounted", "method", ep.Method, "path", ep.Path, "service", ep.Service)
	}
	return r
}

// handlerFor builds the generic handler of one endpoint: ordered path
// params, then the JSON body when present, as positional arguments; flat
// query params as keyword arguments.
func (g *Gateway) handlerFor(ep httpreg.Endpoint) http.Handler {
	paramNames := pathParamNames(ep.Path)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.services.Has(ep.Service) {
			g.writeError(w, r, fmt.Errorf("%w: service %q", errs.ErrNotFound, ep.Service))
			return
		}

		args := services.Args{Keyword: map[string]any{}}
		for _, name := range paramNames {
			args.Positional = append(args.Positional, chi.URLParam(r, name))
		}

		if r.Body != nil && r.ContentLength != 0 {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				g.writeError(w, r, errs.ErrInvalidInput)
				return
			}
			if len(raw) > 0 {
				var body any
				if err := json.Unmarshal(raw, &body); err != nil {
					g.writeError(w, r, errs.ErrInvalidInput)
					return
				}
				args.Positional = append(args.Positional, body)
			}
		}

		for key, values := range r.URL.Query() {
			if len(values) == 1 {
				args.Keyword[key] = values[0]
			} else {
				args.Keyword[key] = values
			}
		}

		result, err := g.services.Call(r.Context(), ep.Service, args)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		g.writeJSON(w, http.StatusOK, result)
	})
}

// statusFor is the single exception-to-status translation table.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an error to its status and emits a JSON error document.
// Internal messages are not leaked for 5xx responses.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
		g.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"operation_id", reqlog.OperationIDFrom(r.Context()), "error", err)
	}

	g.writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		w.Write([]byte("null"))
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// pathParamNames extracts {name} segments in route order.
func pathParamNames(path string) []string {
	matches := pathParamPattern.FindAllStringSubmatch(path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
