// Package channel implements the in-process message channel agents and the
// orchestrator communicate over: point-to-point delivery by address,
// one-shot correlation listeners for request/response pairing, and
// broadcast announcements for lifecycle observation.
//
// Delivery is asynchronous (each handler runs in its own goroutine) and
// best-effort: an envelope addressed to an unknown address is dropped, and
// the requester observes the loss as a timeout. Panicking handlers are
// recovered so one misbehaving agent cannot take down delivery.
package channel
