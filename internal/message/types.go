// Package message normalizes inbound platform webhook payloads into
// IncomingMessage records and decides which of them are admitted for
// processing.
package message

import (
	"encoding/json"
	"strings"
	"time"
)

// Type is the platform message type.
type Type string

const (
	TypeText        Type = "text"
	TypeAudio       Type = "audio"
	TypeImage       Type = "image"
	TypeDocument    Type = "document"
	TypeSticker     Type = "sticker"
	TypeLocation    Type = "location"
	TypeContacts    Type = "contacts"
	TypeInteractive Type = "interactive"
	TypeButton      Type = "button"
	TypeUnknown     Type = "unknown"
)

// ParseType maps a raw type string to a Type, defaulting to TypeUnknown.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeText, TypeAudio, TypeImage, TypeDocument, TypeSticker,
		TypeLocation, TypeContacts, TypeInteractive, TypeButton:
		return t
	default:
		return TypeUnknown
	}
}

// IncomingMessage is the canonical form of one inbound user message.
type IncomingMessage struct {
	UserID    string
	MessageID string
	Type      Type
	// Timestamp is the platform send time in unix seconds.
	Timestamp int64
	Text      string
	MediaID   string
}

// Age returns how long ago the message was sent relative to now.
func (m IncomingMessage) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.Timestamp, 0))
}

// Payload is the top-level webhook delivery.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages of a change. Messages stay raw because
// their shape depends on the message type.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// Metadata about the receiving phone number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender as described by the platform.
type Contact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

// ContactProfile has the display name.
type ContactProfile struct {
	Name string `json:"name"`
}

// Envelope is one raw message together with the contacts of its change.
type Envelope struct {
	Raw      json.RawMessage
	Contacts []Contact
}

// Messages flattens the payload into envelopes, preserving sender order.
func (p Payload) Messages() []Envelope {
	var out []Envelope
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Messages {
				out = append(out, Envelope{Raw: raw, Contacts: change.Value.Contacts})
			}
		}
	}
	return out
}
