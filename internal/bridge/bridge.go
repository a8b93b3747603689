// Package bridge connects the host process to the command dispatcher. Each
// request is one line, COMMAND|arg|arg..., answered with one JSON array line.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/logging"
)

// CommandTimestamp is answered by the bridge itself.
const CommandTimestamp = ":TIMESTAMP:"

const errResponseTooLarge = "response too large"

// maxLine bounds a single request; detection batches can be long.
const maxLine = 1 << 20

// Bridge answers host calls through a dispatcher.
type Bridge struct {
	dispatcher *dispatcher.Dispatcher
	logger     logging.Logger
	// MaxResponse caps a response line in bytes, like the host's fixed output
	// buffer. A longer reply is replaced by an error reply. Zero means
	// unlimited.
	MaxResponse int
}

// New returns a bridge over d.
func New(d *dispatcher.Dispatcher, logger logging.Logger) *Bridge {
	return &Bridge{dispatcher: d, logger: logging.OrNop(logger)}
}

// Call handles one raw request line.
func (b *Bridge) Call(line string) string {
	parts := strings.Split(line, "|")
	return b.CallArgs(parts[0], parts[1:])
}

// CallArgs handles a command with pre-split arguments.
func (b *Bridge) CallArgs(command string, args []string) string {
	command = strings.TrimSpace(command)
	if command == CommandTimestamp {
		return b.reply(command, okResponse(command, getTimestamp()))
	}

	if b.dispatcher == nil || !b.dispatcher.HasHandler(command) {
		return b.reply(command, errorResponse(command, "no handler registered"))
	}

	result, err := b.dispatcher.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	if err != nil {
		return b.reply(command, errorResponse(command, err.Error()))
	}
	return b.reply(command, okResponse(command, result))
}

// Serve reads requests from r until EOF or ctx is done, writing one response
// line per request to w. Blank lines are ignored.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	out := bufio.NewWriter(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			resp := b.Call(line)
			if _, err := out.WriteString(resp + "\n"); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (b *Bridge) reply(command, resp string) string {
	if b.MaxResponse > 0 && len(resp) > b.MaxResponse {
		b.logger.Warn("response too large", "command", command, "length", len(resp), "max", b.MaxResponse)
		return errorResponse(command, errResponseTooLarge)
	}
	return resp
}

// okResponse formats ["ok", command] or ["ok", command, result].
func okResponse(command string, result any) string {
	if result == nil {
		return marshal([]any{"ok", command})
	}
	return marshal([]any{"ok", command, result})
}

// errorResponse formats ["error", command, message].
func errorResponse(command, msg string) string {
	return marshal([]any{"error", command, msg})
}

func marshal(v []any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal([]any{"error", v[1], err.Error()})
	}
	return string(data)
}

func getTimestamp() string {
	return strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
}
