package message

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed is returned when a raw message is not a JSON object.
	ErrMalformed = errors.New("malformed message")
	// ErrMissingUser is returned when neither contacts nor the message name a sender.
	ErrMissingUser = errors.New("message has no sender")
)

// Normalize converts one raw platform message into an IncomingMessage.
// The sender id from contacts[0] wins over the message's own "from" field.
func Normalize(raw json.RawMessage, contacts []Contact) (IncomingMessage, error) {
	if !gjson.ValidBytes(raw) {
		return IncomingMessage{}, ErrMalformed
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return IncomingMessage{}, ErrMalformed
	}

	msg := IncomingMessage{
		UserID:    resolveUser(doc, contacts),
		MessageID: doc.Get("id").String(),
		Type:      ParseType(doc.Get("type").String()),
		Timestamp: doc.Get("timestamp").Int(),
	}
	if msg.UserID == "" {
		return IncomingMessage{}, ErrMissingUser
	}

	switch msg.Type {
	case TypeText:
		msg.Text = doc.Get("text.body").String()
	case TypeInteractive:
		if reply := doc.Get("interactive.button_reply"); reply.Exists() {
			msg.Text = reply.Get("title").String()
		} else {
			msg.Text = doc.Get("interactive.list_reply.title").String()
		}
	case TypeButton:
		msg.Text = doc.Get("button.text").String()
	case TypeAudio:
		msg.MediaID = doc.Get("audio.id").String()
	}

	return msg, nil
}

func resolveUser(doc gjson.Result, contacts []Contact) string {
	if len(contacts) > 0 && contacts[0].WaID != "" {
		return contacts[0].WaID
	}
	return doc.Get("from").String()
}
