package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llm-chat-proxy/internal/llm"
	"llm-chat-proxy/internal/metrics"
)

// App represents the main application with its router, configuration store
// and completion gateway.
type App struct {
	Router  *chi.Mux
	Store   *llm.Store
	Service *llm.Service
	logger  *slog.Logger
}

// NewApp creates the application around an opened store and registers all routes.
func NewApp(store *llm.Store, service *llm.Service, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Router:  chi.NewRouter(),
		Store:   store,
		Service: service,
		logger:  logger,
	}

	a.initializeRoutes()
	return a
}

func (a *App) initializeRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(middleware.Logger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(countRequests)

	a.Router.Get("/health", a.handleHealth)
	a.Router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	llm.NewServerState(a.Store, a.Service).RegisterHandlers(a.Router)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"configured": a.Store.Status().Configured,
	}); err != nil {
		a.logger.Error("encode health response", "error", err)
	}
}

// countRequests records every request by its matched route pattern so that
// path parameters do not inflate label cardinality.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
