// Package http exposes the module registry over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/recordkit/adapters/metrics"
	"github.com/artpar/recordkit/core/descriptor"
	"github.com/artpar/recordkit/core/events"
	"github.com/artpar/recordkit/core/formatter"
	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// maxBodySize bounds construction request bodies.
const maxBodySize = 1 << 20

// Error codes returned in ErrorDetail.Code.
const (
	CodeModuleNotFound   = "module_not_found"
	CodeClassNotFound    = "class_not_found"
	CodeImportFailed     = "import_failed"
	CodeInvalidArguments = "invalid_arguments"
	CodeInvalidBody      = "invalid_body"
	CodeTypeError        = "type_error"
	CodeValueError       = "value_error"
	CodeInternal         = "internal_error"
)

// ErrorResponseBody is the envelope of every error response.
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ModuleList is the response of GET /modules.
type ModuleList struct {
	Count   int                    `json:"count"`
	Modules []formatter.ModuleView `json:"modules"`
}

// EventList is the response of GET /events.
type EventList struct {
	Events []events.Event `json:"events"`
}

// Handler serves the registry endpoints.
type Handler struct {
	registry *importer.Registry
	history  *events.History
	version  string
	logger   zerolog.Logger
}

// NewHandler creates a handler over registry.
func NewHandler(registry *importer.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		version:  "dev",
		logger:   logger,
	}
}

// Liveness returns a simple liveness check.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version returns the service version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: h.version,
		Service: "recordkit",
	})
}

// ListModules returns the cached modules, sorted by name.
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	mods := h.registry.Modules()
	out := ModuleList{Count: len(mods), Modules: make([]formatter.ModuleView, len(mods))}
	for i, m := range mods {
		out.Modules[i] = formatter.SummarizeModule(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetModule imports the named module when needed and describes its classes.
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.importModule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, formatter.DescribeModule(mod))
}

// Construct builds an instance of a class. The body is a JSON object of
// keyword arguments or a JSON array of positional arguments.
func (h *Handler) Construct(w http.ResponseWriter, r *http.Request) {
	mod, ok := h.importModule(w, r)
	if !ok {
		return
	}

	className := chi.URLParam(r, "class")
	class, found := mod.Class(className)
	if !found {
		writeError(w, http.StatusNotFound, ErrorDetail{
			Code:    CodeClassNotFound,
			Message: fmt.Sprintf("module %q has no class %q", mod.Name, className),
		})
		return
	}

	args, kwargs, err := decodeArguments(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorDetail{Code: CodeInvalidBody, Message: err.Error()})
		return
	}

	inst, err := class.Call(args, kwargs)
	if err != nil {
		h.writeConstructError(w, err)
		return
	}

	h.logger.Debug().
		Str("module", mod.Name).
		Str("class", class.Name()).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("instance constructed")

	writeJSON(w, http.StatusCreated, formatter.DescribeInstance(inst))
}

// Events returns the recent lifecycle events, oldest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	out := EventList{Events: []events.Event{}}
	if h.history != nil {
		out.Events = append(out.Events, h.history.Recent()...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) importModule(w http.ResponseWriter, r *http.Request) (*importer.Module, bool) {
	name := chi.URLParam(r, "name")

	mod, err := h.registry.Import(r.Context(), name)
	switch {
	case err == nil:
		return mod, true
	case errors.Is(err, importer.ErrNotFound), errors.Is(err, importer.ErrInvalidModuleName):
		writeError(w, http.StatusNotFound, ErrorDetail{Code: CodeModuleNotFound, Message: err.Error()})
	default:
		h.logger.Error().Err(err).Str("module", name).Msg("import failed")
		writeError(w, http.StatusInternalServerError, ErrorDetail{Code: CodeImportFailed, Message: err.Error()})
	}
	return nil, false
}

func (h *Handler) writeConstructError(w http.ResponseWriter, err error) {
	var verr *descriptor.ValidationError
	switch {
	case errors.As(err, &verr):
		code := CodeValueError
		if errors.Is(err, descriptor.ErrType) {
			code = CodeTypeError
		}
		writeError(w, http.StatusUnprocessableEntity, ErrorDetail{
			Code:    code,
			Field:   verr.Field,
			Message: verr.Message,
		})
	case errors.Is(err, record.ErrArguments):
		writeError(w, http.StatusBadRequest, ErrorDetail{Code: CodeInvalidArguments, Message: err.Error()})
	default:
		h.logger.Error().Err(err).Msg("construction failed")
		writeError(w, http.StatusInternalServerError, ErrorDetail{Code: CodeInternal, Message: err.Error()})
	}
}

// decodeArguments reads an optional JSON array or object. Whole numbers
// become int64 and other numbers float64.
func decodeArguments(r io.Reader) ([]any, map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return nil, nil, errors.New("decode body: trailing data after JSON value")
	}

	switch v := convertNumbers(raw).(type) {
	case []any:
		return v, nil, nil
	case map[string]any:
		return nil, v, nil
	case nil:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("body must be a JSON array or object, got %T", v)
	}
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = convertNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = convertNumbers(t[k])
		}
		return t
	default:
		return v
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorResponseBody{Error: detail})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics     *metrics.Collector // Optional; enables request metrics and the metrics endpoint
	MetricsPath string             // default: /metrics
	History     *events.History    // Optional backing store for GET /events
	Version     string             // Reported by GET /version (default: dev)
	Timeout     time.Duration      // Per-request timeout (default: 60s)
}

// NewRouter creates the HTTP router.
func NewRouter(registry *importer.Registry, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	h := NewHandler(registry, logger)
	h.history = cfg.History
	if cfg.Version != "" {
		h.version = cfg.Version
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, cfg.MetricsPath))
		r.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}

	r.Get("/health", h.Liveness)
	r.Get("/version", h.Version)
	r.Get("/events", h.Events)

	r.Route("/modules", func(r chi.Router) {
		r.Get("/", h.ListModules)
		r.Get("/{name}", h.GetModule)
		r.Post("/{name}/{class}", h.Construct)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorDetail{Code: "not_found", Message: "no route for " + r.URL.Path})
	})

	return r
}

// NewMetricsMiddleware creates middleware that records request metrics,
// labelled by chi route pattern.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if r.URL.Path == "/health" || r.URL.Path == metricsPath {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.ObserveRequest(r.Method, routePattern(r), ww.Status(), time.Since(start))
		})
	}
}

// routePattern returns the matched chi pattern so label cardinality stays
// bounded by the route table.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return strings.TrimSuffix(p, "/")
		}
	}
	return "unmatched"
}

// NewLoggingMiddleware creates middleware that logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/health" || r.URL.Path == metricsPath {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
