// Package api wires the HTTP handlers into a chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndewijer/networth-tracker/internal/api/handlers"
	custommiddleware "github.com/ndewijer/networth-tracker/internal/api/middleware"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/service"
)

// Services groups the services exposed over HTTP.
type Services struct {
	System    *service.SystemService
	Market    *service.MarketDataService
	Portfolio *service.PortfolioService
	Agents    *service.AgentRunner
}

// NewRouter creates and configures the HTTP router
func NewRouter(svc Services, cfg *config.Config, log *logging.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/status", systemHandler.Status)
		})

		r.Route("/market", func(r chi.Router) {
			marketHandler := handlers.NewMarketHandler(svc.Market)
			r.Get("/rates", marketHandler.Rates)
			r.Get("/rates/historical", marketHandler.HistoricalRates)
			r.Get("/rates/range", marketHandler.RangeRates)
			r.With(custommiddleware.ValidateSymbolMiddleware).Get("/history/{symbol}", marketHandler.CurrencyHistory)
			r.Get("/trends", marketHandler.Trends)
		})

		r.Route("/portfolio", func(r chi.Router) {
			portfolioHandler := handlers.NewPortfolioHandler(svc.Portfolio)
			r.Get("/value", portfolioHandler.Value)
			r.Get("/history", portfolioHandler.History)
			r.Get("/performance", portfolioHandler.Performance)
		})

		r.Route("/agents", func(r chi.Router) {
			agentHandler := handlers.NewAgentHandler(svc.Agents)
			r.Get("/", agentHandler.Agents)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", agentHandler.Agent)
				r.Post("/run", agentHandler.Run)
				r.Post("/stop", agentHandler.Stop)
				r.Put("/config", agentHandler.UpdateConfig)
			})
		})
	})

	return r
}
