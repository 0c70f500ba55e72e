package types

import "time"

// Message is a text message sent from one user to another.
// Only ReadAt may change after creation, and only once.
type Message struct {
	// ID is assigned by the store on creation.
	ID int64 `json:"id"`

	// FromUsername is the sender.
	FromUsername string `json:"from_username"`

	// ToUsername is the recipient.
	ToUsername string `json:"to_username"`

	// Body is the message text. It is never empty.
	Body string `json:"body"`

	// SentAt is set when the message is created.
	SentAt time.Time `json:"sent_at"`

	// ReadAt is nil until the recipient reads the message.
	ReadAt *time.Time `json:"read_at"`

	// From is the expanded sender, when the query joins it.
	From *UserSummary `json:"from_user,omitempty"`

	// To is the expanded recipient, when the query joins it.
	To *UserSummary `json:"to_user,omitempty"`
}

// IsRead reports whether the message has been read.
func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

// Event types published on the ledger feed.
const (
	EventMessageSent = "message.sent"
	EventMessageRead = "message.read"
)

// MessageEvent describes a ledger state change for downstream consumers.
type MessageEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	MessageID    int64     `json:"message_id"`
	FromUsername string    `json:"from_username"`
	ToUsername   string    `json:"to_username"`
	At           time.Time `json:"at"`
}
