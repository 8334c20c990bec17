package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/psicolfis/checkout-api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	cors        *cors.Options

	checkout RouteRegistrar
	webhooks RouteRegistrar

	webhookMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix         = "/api"
	defaultTimeout           = 30 * time.Second
	defaultIdempotencyHeader = "Idempotency-Key"
	errorNotFoundCode        = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the API route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		timeout:  defaultTimeout,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r.Use(middleware.RequestID, middleware.RealIP)
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	if cfg.cors != nil {
		r.Use(cors.Handler(*cfg.cors))
	}
	r.Use(middleware.Timeout(cfg.timeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	mountAPI := func(api chi.Router) {
		if cfg.checkout != nil {
			cfg.checkout(api)
		} else {
			registerNotImplementedRoute(api, "/checkout/session", "checkout")
			registerNotImplementedRoute(api, "/checkout/status/{session_id}", "checkout")
		}

		api.Route("/webhook", func(group chi.Router) {
			for _, mw := range cfg.webhookMiddlewares {
				if mw != nil {
					group.Use(mw)
				}
			}
			if cfg.webhooks != nil {
				cfg.webhooks(group)
				return
			}
			registerNotImplemented(group, "webhook")
		})
	}

	if cfg.basePath == "" {
		mountAPI(r)
	} else {
		r.Route(cfg.basePath, mountAPI)
	}

	return r
}

// WithBasePath mounts the API routes under prefix. An empty prefix or "/" mounts them at the root.
func WithBasePath(prefix string) Option {
	return func(cfg *routerConfig) {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if prefix != "" && !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		cfg.basePath = prefix
	}
}

// WithRequestTimeout bounds each request through chi's Timeout middleware.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithCORS allows browser calls from the listed origins. idempotencyHeader names the
// header the session guards read and defaults to Idempotency-Key.
func WithCORS(origins []string, maxAge time.Duration, idempotencyHeader string) Option {
	return func(cfg *routerConfig) {
		if len(origins) == 0 {
			cfg.cors = nil
			return
		}
		idempotencyHeader = strings.TrimSpace(idempotencyHeader)
		if idempotencyHeader == "" {
			idempotencyHeader = defaultIdempotencyHeader
		}
		cfg.cors = &cors.Options{
			AllowedOrigins: append([]string(nil), origins...),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", idempotencyHeader, "X-Request-Id"},
			ExposedHeaders: []string{"Retry-After", "X-Idempotent-Replay", "X-Request-Id"},
			MaxAge:         int(maxAge / time.Second),
		}
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCheckoutRoutes configures the registrar responsible for checkout endpoints.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = reg
	}
}

// WithWebhookRoutes configures the registrar responsible for webhook endpoints.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = reg
	}
}

// WithWebhookMiddlewares configures middlewares applied to the /webhook group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(path, handler)
}
