package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbilibin2017/gw-ledger/internal/middlewares"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// RouterConfig holds the dependencies of the HTTP API.
type RouterConfig struct {
	Processor      TransactionProcessor
	Balances       BalanceReader
	Pinger         Pinger
	Log            *zap.SugaredLogger
	Gatherer       prometheus.Gatherer // nil disables /metrics
	AllowedOrigins []string
	SwaggerURL     string // empty disables /swagger
}

// NewRouter wires the ledger endpoints with recovery, CORS and request logging.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	if cfg.Log != nil {
		r.Use(middlewares.LoggingMiddleware(cfg.Log))
	}

	r.Post("/transaction", NewTransactionHandler(cfg.Processor))
	r.Get("/account/{accountId}", NewGetAccountHandler(cfg.Balances))
	if cfg.Pinger != nil {
		r.Get("/healthz", NewHealthHandler(cfg.Pinger))
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.SwaggerURL != "" {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(cfg.SwaggerURL)))
	}

	return r
}
