package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/access"
	"github.com/mcdev12/racetrack/go/internal/config"
	"github.com/mcdev12/racetrack/go/internal/engine"
	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/gateway"
	"github.com/mcdev12/racetrack/go/internal/race"
	"github.com/mcdev12/racetrack/go/internal/racecontrol"
	"github.com/mcdev12/racetrack/go/internal/relay"
	"github.com/mcdev12/racetrack/go/internal/sessions"
	"github.com/mcdev12/racetrack/go/internal/snapshot"
)

// Services holds every long-lived component of the server.
type Services struct {
	Engine      *engine.Engine
	Gateway     *gateway.Service
	RaceControl *racecontrol.Service

	// Optional; nil when disabled
	Relay *relay.JetStreamPublisher
	Store snapshot.Store
	Saver *snapshot.Saver
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Connection manager + relay → Engine → Gateway / RPC
	clock := clockwork.NewRealClock()
	gate := access.NewGate(cfg.Keys)

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.Clock = clock
	connections := gateway.NewConnectionManager(connConfig, nil)
	publishers := events.Fanout{connections}

	svc := &Services{}
	if cfg.NATS.URL != "" {
		relayCfg := relay.DefaultJetStreamConfig()
		relayCfg.URL = cfg.NATS.URL
		relayCfg.StreamName = cfg.NATS.Stream
		relayCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := relay.NewJetStreamPublisher(relayCfg)
		if err != nil {
			log.Error().Err(err).Str("nats_url", cfg.NATS.URL).Msg("event relay disabled")
		} else {
			svc.Relay = publisher
			publishers = append(publishers, publisher)
		}
	}

	svc.Engine = engine.New(clock, sessions.NewStore(), publishers)

	if cfg.Persist.Enabled {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.Store = store

		// The saver goes in first so a race that expired while offline is
		// written back as inactive.
		svc.Saver = snapshot.NewSaver(clock, store, svc.Engine.Snapshot, cfg.Persist.Debounce)
		svc.Engine.SetSaver(svc.Saver)
		restore(ctx, svc.Engine, store)
	}

	gatewayConfig := gateway.Config{
		ConnectionConfig: connConfig,
		AuthDelay:        cfg.AuthDelay,
		Clock:            clock,
	}
	svc.Gateway = gateway.NewService(gatewayConfig, connections, svc.Engine, gate)
	svc.RaceControl = racecontrol.NewService(svc.Engine, gate)

	return svc, nil
}

func openStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	switch cfg.Persist.Backend {
	case config.BackendBadger:
		store, err := snapshot.OpenBadger(cfg.Persist.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger snapshot store: %w", err)
		}
		return store, nil

	case config.BackendPostgres:
		db, err := cfg.Database.Open()
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("connected to database")
		store, err := snapshot.NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	default:
		store, err := snapshot.NewFileStore(cfg.Persist.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot file: %w", err)
		}
		return store, nil
	}
}

// restore loads the last snapshot. A failed load starts from empty state
// rather than refusing to serve.
func restore(ctx context.Context, eng *engine.Engine, store snapshot.Store) {
	doc, err := store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load snapshot, starting empty")
		return
	}
	if doc == nil {
		log.Info().Msg("no snapshot found, starting empty")
		return
	}

	eng.Restore(doc)
	if outcome := eng.Resume(); outcome == race.ResumeRunning {
		log.Info().Msg("race countdown resumed from snapshot")
	}
}

// Start runs background loops until ctx is cancelled.
func (s *Services) Start(ctx context.Context) {
	if s.Relay != nil {
		s.Relay.Start(ctx)
	}
	s.Gateway.Start(ctx)
}

// Close stops the engine and flushes state. Call after ctx passed to Start
// is cancelled.
func (s *Services) Close(ctx context.Context) {
	s.Engine.Close()

	if s.Saver != nil {
		if err := s.Saver.Flush(ctx); err != nil {
			log.Error().Err(err).Msg("failed to flush snapshot")
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close snapshot store")
		}
	}
	if s.Relay != nil {
		if err := s.Relay.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event relay")
		}
	}
}
