package notify

import "time"

// Status of an outbox message.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusDead       = "dead"
)

// Message is one pending notification produced by the process engine.
// Delivery is at-most-once from the consumer's point of view: a message is
// never redelivered after a successful send, and exhausted messages are
// parked as dead without affecting record state.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}
