package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/console/handler"
	"github.com/xela07ax/crisisguard-client/internal/engine"
	"github.com/xela07ax/crisisguard-client/internal/infra/auth"
)

// Handlers — обработчики бизнес-доменов console API.
type Handlers struct {
	Alerts  *handler.AlertHandler   // /v1/alerts
	Channel *handler.ChannelHandler // /v1/channel
	Agent   *handler.AgentHandler   // /v1/agent
	Pages   *handler.PageHandler    // /v1/pages
	Journal *handler.JournalHandler // /v1/journal
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// nil-валидаторы выключают соответствующий способ входа
	tokens auth.TokenValidator
	keys   auth.KeyValidator

	h        Handlers
	gatherer prometheus.Gatherer
}

// NewConsoleServer собирает роутер. gatherer может быть nil, тогда /metrics не публикуется.
func NewConsoleServer(
	logger *zap.Logger,
	tokens auth.TokenValidator,
	keys auth.KeyValidator,
	h Handlers,
	gatherer prometheus.Gatherer,
) *ConsoleServer {
	s := &ConsoleServer{
		router:   chi.NewRouter(),
		logger:   logger.Named("console-api"),
		tokens:   tokens,
		keys:     keys,
		h:        h,
		gatherer: gatherer,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.AccessLog(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.tokens, s.keys, s.logger))

		r.With(auth.RequireScope(auth.ScopeAlertsRead)).Get("/v1/alerts/last", s.h.Alerts.Last)
		r.With(auth.RequireScope(auth.ScopeAgentRead)).Get("/v1/channel", s.h.Channel.Get)

		r.Route("/v1/agent", func(r chi.Router) {
			r.With(auth.RequireScope(auth.ScopeAgentRead)).Get("/status", s.h.Agent.Status)
			r.With(auth.RequireScope(auth.ScopeAgentConfig)).Post("/config", s.h.Agent.PushConfig)
		})

		r.With(auth.RequireScope(auth.ScopePagesScan)).Post("/v1/pages/scan", s.h.Pages.Scan)
		r.With(auth.RequireScope(auth.ScopeJournalRead)).Get("/v1/journal", s.h.Journal.Recent)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
