package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("channel is closed")

type subscription struct {
	id      uint64
	handler core.MessageHandler
}

// Options configures an InMemory channel.
type Options struct {
	// Logger receives delivery diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// InMemory is a goroutine-safe core.Channel for a single process. Handlers
// run asynchronously; Close waits for in-flight deliveries to finish.
type InMemory struct {
	mu       sync.RWMutex
	subs     map[string]subscription // address -> handler
	pending  map[string]subscription // correlation id -> one-shot listener
	watchers []subscription
	nextID   atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
	logger   logging.Logger
}

var _ core.Channel = (*InMemory)(nil)

// NewInMemory creates an in-memory channel.
func NewInMemory(optFns ...func(o *Options)) *InMemory {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemory{
		subs:    make(map[string]subscription),
		pending: make(map[string]subscription),
		logger:  opts.Logger,
	}
}

// Publish delivers msg point-to-point. Response and Error envelopes are
// first offered to a matching one-shot correlation listener; everything
// else (and unclaimed responses) goes to the subscriber registered under
// msg.To. Unknown addresses drop the envelope.
func (c *InMemory) Publish(ctx context.Context, msg core.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if (msg.Kind == core.KindResponse || msg.Kind == core.KindError) && msg.CorrelationID != "" {
		c.mu.Lock()
		sub, ok := c.pending[msg.CorrelationID]
		if ok {
			delete(c.pending, msg.CorrelationID)
		}
		c.mu.Unlock()
		if ok {
			c.dispatch(ctx, msg, sub)
			return nil
		}
	}

	c.mu.RLock()
	sub, ok := c.subs[msg.To]
	c.mu.RUnlock()
	if !ok {
		c.logger.Debug("channel.drop", "to", msg.To, "kind", string(msg.Kind), "id", msg.ID)
		return nil
	}

	c.dispatch(ctx, msg, sub)
	return nil
}

// Subscribe registers the handler for the address, replacing any prior
// subscription. The returned function removes the subscription unless it
// has already been replaced.
func (c *InMemory) Subscribe(address string, h core.MessageHandler) func() {
	id := c.nextID.Add(1)

	c.mu.Lock()
	c.subs[address] = subscription{id: id, handler: h}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[address]; ok && sub.id == id {
			delete(c.subs, address)
		}
	}
}

// Once registers a one-shot listener for the correlation id. The returned
// function cancels the listener if it has not fired.
func (c *InMemory) Once(correlationID string, h core.MessageHandler) func() {
	id := c.nextID.Add(1)

	c.mu.Lock()
	c.pending[correlationID] = subscription{id: id, handler: h}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.pending[correlationID]; ok && sub.id == id {
			delete(c.pending, correlationID)
		}
	}
}

// Announce fans msg out to every watcher. Best-effort, unacknowledged.
func (c *InMemory) Announce(ctx context.Context, msg core.Message) {
	if c.closed.Load() {
		return
	}

	c.mu.RLock()
	watchers := make([]subscription, len(c.watchers))
	copy(watchers, c.watchers)
	c.mu.RUnlock()

	for _, sub := range watchers {
		c.dispatch(ctx, msg, sub)
	}
}

// Watch registers a handler observing every announced envelope. The
// returned function removes the watcher.
func (c *InMemory) Watch(h core.MessageHandler) func() {
	id := c.nextID.Add(1)

	c.mu.Lock()
	c.watchers = append(c.watchers, subscription{id: id, handler: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.watchers {
			if sub.id == id {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

// Close prevents new deliveries and waits for in-flight handlers to finish.
// Close is idempotent.
func (c *InMemory) Close() {
	// The flag flips under the write lock so no dispatch can slip its
	// wg.Add in after the Wait below has started.
	c.mu.Lock()
	already := c.closed.Swap(true)
	c.mu.Unlock()
	if already {
		return
	}
	c.wg.Wait()
}

func (c *InMemory) dispatch(ctx context.Context, msg core.Message, sub subscription) {
	c.mu.RLock()
	if c.closed.Load() {
		c.mu.RUnlock()
		c.logger.Debug("channel.drop", "to", msg.To, "kind", string(msg.Kind), "id", msg.ID)
		return
	}
	c.wg.Add(1)
	c.mu.RUnlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("channel.handler.panic", "to", msg.To, "kind", string(msg.Kind), "panic", r)
			}
		}()
		sub.handler(ctx, msg)
	}()
}
