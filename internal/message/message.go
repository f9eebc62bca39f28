package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Type selects how a message body is presented
type Type string

const (
	TypeText Type = "text"
	TypePDF  Type = "pdf"
)

// Message represents a single entry in the visible conversation
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"` // plain text, or base64 when Type is pdf
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Filename  string    `json:"filename,omitempty"`
}

// New creates a message with a fresh client-side ID. An empty type defaults to text.
func New(content string, sender Sender, typ Type) Message {
	if typ == "" {
		typ = TypeText
	}
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now(),
		Type:      typ,
	}
}

// ParseType validates a wire type value. Missing means text.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "", TypeText:
		return TypeText, nil
	case TypePDF:
		return TypePDF, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}
