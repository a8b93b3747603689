package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/pkg/streaming"
)

const (
	outboxSize   = 4096
	maxRedials   = 10
	maxRetryWait = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

var errConnClosed = errors.New("websocket connection closed")

// socket is one dialled websocket plus the channel that retires its loops.
type socket struct {
	conn    *ws.Conn
	retired chan struct{}
}

func (s *socket) write(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(ws.TextMessage, data)
}

// connection keeps a websocket to the journal server alive. One goroutine
// per socket writes; a dropped socket is redialled with exponential wait and
// the pending session_start is written first on the new one.
type connection struct {
	mu      sync.Mutex
	current *socket
	closed  bool
	waiters map[string]chan struct{}
	resume  []byte

	outbox chan []byte
	done   chan struct{}

	target    string
	retryBase time.Duration

	logger logging.Logger
}

func newConnection(logger logging.Logger) *connection {
	return &connection{
		waiters:   make(map[string]chan struct{}),
		outbox:    make(chan []byte, outboxSize),
		done:      make(chan struct{}),
		retryBase: time.Second,
		logger:    logging.OrNop(logger),
	}
}

// dial connects once; the secret travels as a query parameter.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	c.target = u.String()

	s, err := c.open()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.adopt(s)
	c.mu.Unlock()
	return nil
}

func (c *connection) open() (*socket, error) {
	conn, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &socket{conn: conn, retired: make(chan struct{})}, nil
}

// adopt makes s current. Callers hold c.mu.
func (c *connection) adopt(s *socket) {
	c.current = s
	go c.pump(s)
	go c.listen(s)
}

// pump drains the outbox onto s. A message picked up after s was retired or
// that failed to write is requeued for the next socket.
func (c *connection) pump(s *socket) {
	for {
		var data []byte
		select {
		case <-c.done:
			return
		case <-s.retired:
			return
		case data = <-c.outbox:
		}

		select {
		case <-s.retired:
			c.send(data)
			return
		default:
		}
		if err := s.write(data); err != nil {
			c.logger.Warn("WebSocket write error", "error", err)
			c.send(data)
			go c.redial(s)
			return
		}
	}
}

// listen resolves ack waiters. Other server messages are ignored.
func (c *connection) listen(s *socket) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.redial(s)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring server message", "raw", string(message))
			continue
		}
		c.mu.Lock()
		if w, ok := c.waiters[ack.For]; ok {
			close(w)
			delete(c.waiters, ack.For)
		}
		c.mu.Unlock()
	}
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// redial replaces broken. pump and listen can both report the same socket;
// the second report finds it already replaced and returns.
func (c *connection) redial(broken *socket) {
	c.mu.Lock()
	if c.closed || c.current != broken {
		c.mu.Unlock()
		return
	}
	close(broken.retired)
	_ = broken.conn.Close()
	c.current = nil
	c.mu.Unlock()

	wait := c.retryBase
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}
		wait = min(wait*2, maxRetryWait)

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt)
		s, err := c.open()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}
		if c.resumeOn(s) {
			if !c.isClosed() {
				c.logger.Info("WebSocket reconnected", "attempt", attempt)
			}
			return
		}
	}
	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxRedials)
}

// resumeOn writes the pending session_start to s ahead of anything queued,
// then adopts s. It reports false when s had to be discarded and the caller
// should dial again.
func (c *connection) resumeOn(s *socket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = s.conn.Close()
		return true
	}
	if c.resume != nil {
		if err := s.write(c.resume); err != nil {
			c.logger.Warn("Failed to replay session_start after reconnect", "error", err)
			_ = s.conn.Close()
			return false
		}
	}
	c.adopt(s)
	return true
}

// send queues data without blocking. A full outbox drops it.
func (c *connection) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return false
	}
}

// sendAndWait queues data and blocks until the server acks ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	acked := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.waiters[ackFor] = acked
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.waiters[ackFor] == acked {
			delete(c.waiters, ackFor)
		}
		c.mu.Unlock()
	}()

	if !c.send(data) {
		return fmt.Errorf("send queue full for %q", ackFor)
	}

	select {
	case <-acked:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ack of %q", ackFor)
	case <-c.done:
		return fmt.Errorf("%w while waiting for ack of %q", errConnClosed, ackFor)
	}
}

func (c *connection) setSessionMessage(data []byte) {
	c.mu.Lock()
	c.resume = data
	c.mu.Unlock()
}

// close says goodbye to the server and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	_ = s.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return s.conn.Close()
}
