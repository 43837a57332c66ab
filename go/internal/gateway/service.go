package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/access"
)

// Service bundles the WebSocket gateway and the read-only HTTP API.
type Service struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	AuthDelay        time.Duration
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AuthDelay:        500 * time.Millisecond,
		Clock:            clockwork.NewRealClock(),
	}
}

// NewService creates the gateway around a connection manager that the
// engine already publishes to.
func NewService(config Config, connectionManager *ConnectionManager, engine Engine, gate *access.Gate) *Service {
	dispatcher := NewDispatcher(engine, gate, connectionManager, config.Clock, config.AuthDelay)
	connectionManager.SetHandler(dispatcher)

	return &Service{
		connectionManager: connectionManager,
		dispatcher:        dispatcher,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(engine),
	}
}

// Start processes outbound messages until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting racetrack gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("racetrack gateway stopped")
}

// RegisterRoutes registers the WebSocket and state routes
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.wsHandler.HandleConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)
	s.stateHandler.RegisterStateRoutes(r)
	log.Info().Msg("gateway routes registered")
}

// Handler returns a router with only the gateway routes.
func (s *Service) Handler() http.Handler {
	router := chi.NewRouter()
	s.RegisterRoutes(router)
	return router
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
