// Package streaming defines the JSON messages the websocket journal backend
// sends to a live dashboard.
package streaming

import (
	"encoding/json"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// Message type constants.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeBinding      = "binding"
	TypeHighlight    = "highlight"
	TypeCompletion   = "completion"
	TypeUnrecognized = "unrecognized"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// SessionStartPayload opens a session on the server.
type SessionStartPayload struct {
	Session *core.Session `json:"session"`
}

// SessionEndPayload closes the session named by SessionID.
type SessionEndPayload struct {
	SessionID string `json:"sessionId"`
}

// Decode unmarshals an envelope's payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
