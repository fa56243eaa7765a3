package core

import "context"

// MessageHandler consumes a delivered envelope.
type MessageHandler func(ctx context.Context, msg Message)

// Channel is the addressable delivery mechanism every agent and the
// orchestrator are constructed with. It is an explicit dependency, never a
// process-wide singleton, so tests can run isolated channel instances.
//
// Delivery rules:
//   - Publish routes point-to-point by Message.To. Response and Error
//     envelopes whose CorrelationID matches a registered one-shot listener
//     are claimed by that listener instead of the To subscriber.
//   - Announce fans an envelope out to every watcher. Watchers observe
//     lifecycle and error events without being addressable themselves.
//
// Delivery is asynchronous and best-effort; callers must not assume a
// handler has run by the time Publish returns, only that delivery precedes
// any dependent downstream message.
type Channel interface {
	// Publish delivers msg to the subscriber registered under msg.To.
	// It returns an error only if the channel is closed; an unknown
	// address is not an error (the envelope is dropped, and a pending
	// request will surface the loss as a timeout).
	Publish(ctx context.Context, msg Message) error

	// Subscribe registers the handler for all envelopes addressed to the
	// given address. Re-subscribing an address replaces the prior handler.
	// The returned function removes the subscription.
	Subscribe(address string, h MessageHandler) (unsubscribe func())

	// Once registers a one-shot listener claiming the first Response or
	// Error envelope carrying the given correlation id. The returned
	// function deregisters the listener if it has not fired.
	Once(correlationID string, h MessageHandler) (cancel func())

	// Announce fans msg out to all watchers. Best-effort, unacknowledged.
	Announce(ctx context.Context, msg Message)

	// Watch registers a handler observing every announced envelope.
	// The returned function removes the watcher.
	Watch(h MessageHandler) (unwatch func())
}
