package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 10 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type Config struct {
	// PoolSize bounds the number of handlers running at the same time.
	PoolSize int
	// Timeout bounds a single handler run.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Bus is an in-memory event bus. Handlers run asynchronously, so publishers
// never wait for them, e.g. while holding the engine lock.
type Bus struct {
	pool     chan struct{}
	timeout  time.Duration
	logger   *slog.Logger
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]subscription
	closed   bool
}

type subscription struct {
	name string
	h    Handler
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(c Config) *Bus {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Bus{
		pool:     make(chan struct{}, c.PoolSize),
		timeout:  c.Timeout,
		logger:   c.Logger,
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]subscription),
	}
}

// Subscribe a named handler to an event. The subscriber name is only used for logging.
func (b *Bus) Subscribe(event, subscriber string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[event] = append(b.handlers[event], subscription{name: subscriber, h: h})
}

// Publish an event. Events published after Stop are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.WarnContext(ctx, "event: bus stopped, event dropped", "event", e.Name())
		return
	}

	for _, s := range b.handlers[e.Name()] {
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, e Event) {
	b.wg.Add(1)

	// Publish never waits for a free pool slot.
	go func() {
		b.pool <- struct{}{}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				b.logger.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"subscriber", s.name,
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := s.h(ctx, e); err != nil {
			b.logger.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"subscriber", s.name,
				"error", err,
			)
		}
	}()
}

// Stop rejects new events and waits for all running handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
}
