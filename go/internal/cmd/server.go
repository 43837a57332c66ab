package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/racetrack/go/internal/config"
	"github.com/mcdev12/racetrack/go/internal/gateway"
	"github.com/mcdev12/racetrack/go/internal/racecontrol"
	"github.com/mcdev12/racetrack/go/internal/relay"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(r, services)

	// Add health check endpoint
	setupHealthCheck(r, services)

	// Wrap with CORS
	handler := c.Handler(r)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(r chi.Router, services *Services) {
	// WebSocket gateway and read-only state API
	services.Gateway.RegisterRoutes(r)

	// Race control RPC
	path, handler := racecontrol.NewHandler(services.RaceControl)
	r.Handle(path+"*", handler)
}

type infoResponse struct {
	Service     string                  `json:"service"`
	Connections gateway.ConnectionStats `json:"connections"`
	Relay       *relay.Stats            `json:"relay,omitempty"`
	Countdown   bool                    `json:"countdown"`
}

func setupHealthCheck(r chi.Router, services *Services) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
		info := infoResponse{
			Service:     "racetrack",
			Connections: services.Gateway.GetStats(),
			Countdown:   services.Engine.CountdownRunning(),
		}
		if services.Relay != nil {
			stats := services.Relay.Stats()
			info.Relay = &stats
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("http request")
}
