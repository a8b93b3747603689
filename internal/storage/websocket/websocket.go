// Package websocket streams journal records to a live dashboard.
package websocket

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
	"github.com/kitchenlens/highlighter/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams records over a websocket. Session start and end wait for
// a server ack; every other record is fire-and-forget.
type Backend struct {
	conn      *connection
	cfg       Config
	seq       atomic.Uint64
	sessionID atomic.Pointer[string]
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger logging.Logger) *Backend {
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func (b *Backend) marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Seq: b.seq.Add(1), Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	if b.sessionID.Load() == nil {
		return storage.ErrNoSession
	}
	data, err := b.marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends session_start, keeps it for reconnect replay and waits
// for the ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := b.marshalEnvelope(streaming.TypeSessionStart, streaming.SessionStartPayload{Session: s})
	if err != nil {
		return err
	}
	b.conn.setSessionMessage(data)

	id := s.ID
	b.sessionID.Store(&id)
	return b.conn.sendAndWait(data, streaming.TypeSessionStart, ackTimeout)
}

// EndSession sends session_end and waits for the ack.
func (b *Backend) EndSession() error {
	idp := b.sessionID.Load()
	if idp == nil {
		return storage.ErrNoSession
	}

	data, err := b.marshalEnvelope(streaming.TypeSessionEnd, streaming.SessionEndPayload{SessionID: *idp})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeSessionEnd, ackTimeout)

	// forget the session even if the server never acked
	b.conn.setSessionMessage(nil)
	b.sessionID.Store(nil)
	return err
}

func (b *Backend) RecordBinding(r *core.BindingRecord) error {
	return b.sendEnvelope(streaming.TypeBinding, r)
}

func (b *Backend) RecordHighlight(r *core.HighlightRecord) error {
	return b.sendEnvelope(streaming.TypeHighlight, r)
}

func (b *Backend) RecordCompletion(r *core.CompletionRecord) error {
	return b.sendEnvelope(streaming.TypeCompletion, r)
}

func (b *Backend) RecordUnrecognized(r *core.UnrecognizedRecord) error {
	return b.sendEnvelope(streaming.TypeUnrecognized, r)
}
