package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		contacts []Contact
		want     IncomingMessage
	}{
		{
			name:     "text prefers contact id",
			raw:      `{"from":"111","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"hello"}}`,
			contacts: []Contact{{WaID: "222"}},
			want:     IncomingMessage{UserID: "222", MessageID: "wamid.1", Type: TypeText, Timestamp: 1700000000, Text: "hello"},
		},
		{
			name: "falls back to from without contacts",
			raw:  `{"from":"111","id":"wamid.2","timestamp":1700000001,"type":"text","text":{"body":"hi"}}`,
			want: IncomingMessage{UserID: "111", MessageID: "wamid.2", Type: TypeText, Timestamp: 1700000001, Text: "hi"},
		},
		{
			name:     "empty contact id falls back to from",
			raw:      `{"from":"111","id":"wamid.3","timestamp":"1","type":"text","text":{"body":"x"}}`,
			contacts: []Contact{{WaID: ""}},
			want:     IncomingMessage{UserID: "111", MessageID: "wamid.3", Type: TypeText, Timestamp: 1, Text: "x"},
		},
		{
			name: "interactive button reply",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Yes"}}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeInteractive, Timestamp: 5, Text: "Yes"},
		},
		{
			name: "interactive list reply",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"l1","title":"Option A"}}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeInteractive, Timestamp: 5, Text: "Option A"},
		},
		{
			name: "button label",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"button","button":{"payload":"p","text":"Start"}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeButton, Timestamp: 5, Text: "Start"},
		},
		{
			name: "audio carries media id",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"audio","audio":{"id":"media-9","mime_type":"audio/ogg"}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeAudio, Timestamp: 5, MediaID: "media-9"},
		},
		{
			name: "image has no text",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"image","image":{"id":"img","caption":"look"}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeImage, Timestamp: 5},
		},
		{
			name: "unknown type",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"reaction"}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeUnknown, Timestamp: 5},
		},
		{
			name: "uppercase type",
			raw:  `{"from":"111","id":"m","timestamp":"5","type":"TEXT","text":{"body":"caps"}}`,
			want: IncomingMessage{UserID: "111", MessageID: "m", Type: TypeText, Timestamp: 5, Text: "caps"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(json.RawMessage(tt.raw), tt.contacts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize(json.RawMessage(`{"id":"m","type":"text"}`), nil)
	assert.ErrorIs(t, err, ErrMissingUser)

	_, err = Normalize(json.RawMessage(`not json`), nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Normalize(json.RawMessage(`["array"]`), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPayloadMessagesPreservesOrder(t *testing.T) {
	body := `{
  "object": "whatsapp_business_account",
  "entry": [
    {"id": "e1", "changes": [
      {"field": "messages", "value": {
        "contacts": [{"wa_id": "222", "profile": {"name": "Ann"}}],
        "messages": [
          {"from": "222", "id": "m1", "timestamp": "1", "type": "text", "text": {"body": "one"}},
          {"from": "222", "id": "m2", "timestamp": "2", "type": "text", "text": {"body": "two"}}
        ]}},
      {"field": "messages", "value": {"statuses": [{"id": "s1", "status": "read"}]}}
    ]},
    {"id": "e2", "changes": [
      {"field": "messages", "value": {
        "messages": [{"from": "333", "id": "m3", "timestamp": "3", "type": "text", "text": {"body": "three"}}]}}
    ]}
  ]
}`
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	envs := p.Messages()
	require.Len(t, envs, 3)

	var ids, users []string
	for _, env := range envs {
		msg, err := Normalize(env.Raw, env.Contacts)
		require.NoError(t, err)
		ids = append(ids, msg.MessageID)
		users = append(users, msg.UserID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	assert.Equal(t, []string{"222", "222", "333"}, users)
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeSticker, ParseType("sticker"))
	assert.Equal(t, TypeLocation, ParseType(" Location "))
	assert.Equal(t, TypeUnknown, ParseType(""))
	assert.Equal(t, TypeUnknown, ParseType("video"))
}
