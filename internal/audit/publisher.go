package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Publisher captures structured audit events. It is append-only and uses the
// Store for persistence so tests can swap sinks easily. With an async buffer
// configured, Emit enqueues and a background worker drains; without one,
// Emit appends synchronously.
type Publisher struct {
	store  Store
	logger *slog.Logger

	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*publisherConfig)

type publisherConfig struct {
	asyncBuffer int
	logger      *slog.Logger
}

// WithAsyncBuffer enables asynchronous emission with the given queue size.
func WithAsyncBuffer(size int) Option {
	return func(cfg *publisherConfig) {
		cfg.asyncBuffer = size
	}
}

// WithLogger sets the logger used for drop/failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *publisherConfig) {
		cfg.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	cfg := &publisherConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	p := &Publisher{store: store, logger: cfg.logger}
	if cfg.asyncBuffer > 0 {
		p.inbox = make(chan Event, cfg.asyncBuffer)
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records one event. In async mode a full queue drops the event with a
// warning rather than blocking the request path.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.Warn("audit queue full, dropping event", "action", event.Action)
		return nil
	}
}

func (p *Publisher) List(ctx context.Context, userID domain.UserID) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops the async worker after draining queued events.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			<-p.done
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
