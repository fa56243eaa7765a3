package core

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind categorizes envelopes exchanged over a Channel.
type MessageKind string

const (
	// KindRequest asks the addressed agent to process a task and answer.
	KindRequest MessageKind = "request"
	// KindResponse carries the successful result of an earlier request.
	KindResponse MessageKind = "response"
	// KindEvent is a fire-and-forget notification; never answered.
	KindEvent MessageKind = "event"
	// KindError carries the failure of an earlier request.
	KindError MessageKind = "error"
)

// Message is the envelope delivered by a Channel. Envelopes are ephemeral:
// they exist only for the duration of delivery and are never persisted.
//
// Request/Response pairs are linked by CorrelationID, generated by the
// requester. The envelope ID identifies the individual delivery; a response
// gets a fresh ID but echoes the request's CorrelationID so the one-shot
// listener registered by the requester can claim it.
type Message struct {
	ID            string      `json:"id"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	Kind          MessageKind `json:"kind"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       any         `json:"payload,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// NewMessage creates an envelope with a fresh ID and UTC timestamp.
func NewMessage(from, to string, kind MessageKind, payload any) Message {
	return Message{
		ID:        NewID(),
		From:      from,
		To:        to,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Reply builds a Response envelope addressed back to the sender of m,
// preserving its correlation id.
func (m Message) Reply(from string, payload any) Message {
	r := NewMessage(from, m.From, KindResponse, payload)
	r.CorrelationID = m.CorrelationID
	return r
}

// ReplyError builds an Error envelope addressed back to the sender of m,
// preserving its correlation id. The payload is the error message.
func (m Message) ReplyError(from string, err error) Message {
	r := NewMessage(from, m.From, KindError, err.Error())
	r.CorrelationID = m.CorrelationID
	return r
}

// NewID generates a unique identifier for envelopes, agents and
// correlations. UUID based; sortable ids (executions) use ULIDs instead.
func NewID() string { return uuid.NewString() }
