package fabric

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders a Message's handling relative to others; it is
// carried through but not enforced by this package.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Payload is either an inline byte slice or a reference to a shared
// buffer, never both.
type Payload struct {
	Inline    []byte
	SharedRef *Ref
}

// Message is the unit the fabric moves between components.
type Message struct {
	ID        uuid.UUID
	Sender    string
	Recipient string
	Method    string
	Data      Payload
	Timestamp int64
	Priority  Priority
}

// Fabric creates messages, inlining small payloads and promoting large
// ones to the shared buffer store.
type Fabric struct {
	store *Store
}

// NewFabric wraps store in message-framing semantics.
func NewFabric(store *Store) *Fabric {
	return &Fabric{store: store}
}

// CreateMessage applies the framing law: payloads over InlineThreshold
// bytes are allocated in the shared buffer store and referenced;
// smaller payloads are embedded directly.
func (f *Fabric) CreateMessage(sender, recipient, method string, payload []byte, priority Priority) Message {
	msg := Message{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Method:    method,
		Timestamp: time.Now().Unix(),
		Priority:  priority,
	}

	if len(payload) <= InlineThreshold {
		msg.Data = Payload{Inline: append([]byte(nil), payload...)}
		return msg
	}

	ref := f.store.Allocate(payload, sender)
	msg.Data = Payload{SharedRef: &ref}
	return msg
}

// Resolve returns a message's payload bytes, reading through the
// shared buffer store when the data is a reference.
func (f *Fabric) Resolve(msg Message) ([]byte, error) {
	if msg.Data.SharedRef == nil {
		return msg.Data.Inline, nil
	}
	return f.store.Read(*msg.Data.SharedRef)
}
