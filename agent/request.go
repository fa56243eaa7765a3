package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentdock/core"
)

// ErrTimeout is returned when no correlated Response or Error envelope
// arrives within the request window. The channel cannot distinguish a
// missing listener from a slow one, so an unknown address also surfaces as
// a timeout.
var ErrTimeout = errors.New("request timed out")

// RemoteError wraps the payload of an Error envelope answered by the
// remote agent.
type RemoteError struct {
	Remote  string
	Payload any
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error from %s: %v", e.Remote, e.Payload)
}

// Request performs a single correlated request/response exchange over the
// channel: it generates a fresh correlation id, registers a one-shot
// listener for it, publishes the Request envelope and waits. Exactly one of
// three outcomes occurs; the listener is always deregistered afterwards.
func Request(ctx context.Context, ch core.Channel, from, to string, payload any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	corrID := core.NewID()
	replyCh := make(chan core.Message, 1)
	cancel := ch.Once(corrID, func(_ context.Context, msg core.Message) {
		replyCh <- msg
	})
	defer cancel()

	msg := core.NewMessage(from, to, core.KindRequest, payload)
	msg.CorrelationID = corrID
	if err := ch.Publish(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish request to %s: %w", to, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		if reply.Kind == core.KindError {
			return nil, &RemoteError{Remote: reply.From, Payload: reply.Payload}
		}
		return reply.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("request to %s: %w", to, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
