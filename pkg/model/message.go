package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MessageID string

// NewMessageID generates a time-ordered MessageID (UUIDv7)
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a track conversation. Timestamp is Unix milliseconds.
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}

// NewMessage creates a message stamped with the given time
func NewMessage(role Role, text string, now time.Time) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      role,
		Text:      text,
		Timestamp: now.UnixMilli(),
	}
}

// Validate checks if the message is well-formed
func (m *Message) Validate() error {
	if m.ID == "" {
		return goerr.New("message id is empty")
	}
	switch m.Role {
	case RoleUser, RoleModel:
		return nil
	default:
		return goerr.Wrap(ErrInvalidRole, "unknown role", goerr.V("role", m.Role))
	}
}
