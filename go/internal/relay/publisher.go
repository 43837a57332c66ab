package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/events"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int           // Number of replicas for the stream
	DuplicateWindow time.Duration // Window for duplicate detection
	QueueSize       int           // Events buffered before dropping
	PublishTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "RACETRACK_EVENTS",
		SubjectPrefix:   "racetrack.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       1000,
		PublishTimeout:  5 * time.Second,
	}
}

// msgPublisher is the part of jetstream.JetStream the relay uses.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Stats counts relay outcomes.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// JetStreamPublisher mirrors broadcast events into a JetStream stream. Publish
// never blocks: events go onto a bounded queue drained by one goroutine.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig

	queue    chan *events.Event
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("racetrack"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, cfg JetStreamConfig) *JetStreamPublisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJetStreamConfig().QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultJetStreamConfig().PublishTimeout
	}
	return &JetStreamPublisher{
		js:     js,
		config: cfg,
		queue:  make(chan *events.Event, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Racetrack broadcast event mirror",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Start launches the drain goroutine.
func (p *JetStreamPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Publish enqueues ev, dropping it when the queue is full.
func (p *JetStreamPublisher) Publish(ev *events.Event) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
		log.Warn().Str("event", string(ev.Type)).Str("event_id", ev.ID).Msg("relay queue full, dropping event")
	}
}

func (p *JetStreamPublisher) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drain()
			return
		case ev := <-p.queue:
			p.send(ctx, ev)
		}
	}
}

func (p *JetStreamPublisher) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.send(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *JetStreamPublisher) send(ctx context.Context, ev *events.Event) {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, ev.Type)

	data, err := json.Marshal(ev)
	if err != nil {
		p.failed.Add(1)
		log.Error().Err(err).Str("event_id", ev.ID).Msg("marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(ev.Type)},
			"Session-ID": []string{ev.SessionID},
			"Event-ID":   []string{ev.ID},
		},
	},
		jetstream.WithMsgID(ev.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		p.failed.Add(1)
		log.Error().Err(err).Str("subject", subject).Str("event_id", ev.ID).Msg("publish to JetStream")
		return
	}

	p.published.Add(1)
	log.Debug().
		Str("subject", subject).
		Str("event_id", ev.ID).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published to JetStream")
}

// Stats returns the relay counters.
func (p *JetStreamPublisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Connected reports the NATS connection status.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close flushes queued events and closes the connection.
func (p *JetStreamPublisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
