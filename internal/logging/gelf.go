package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Graylog2/go-gelf/gelf"
)

// GelfSender is the part of *gelf.Writer the handler uses.
type GelfSender interface {
	WriteMessage(m *gelf.Message) error
}

// NewGraylogWriter dials the GELF UDP endpoint.
func NewGraylogWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("graylog writer %s: %w", address, err)
	}
	return w, nil
}

// GelfHandler is a slog.Handler that ships records to Graylog.
type GelfHandler struct {
	sender   GelfSender
	level    slog.Leveler
	host     string
	facility string
	fixed    map[string]any
	groups   []string
}

// NewGelfHandler returns a handler sending records at or above level.
func NewGelfHandler(sender GelfSender, level string, facility string) *GelfHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GelfHandler{
		sender:   sender,
		level:    parseLevel(level),
		host:     host,
		facility: facility,
	}
}

func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, r.NumAttrs()+len(h.fixed))
	for k, v := range h.fixed {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.groups, a)
		return true
	})

	msg := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	}
	return h.sender.WriteMessage(msg)
}

func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fixed = make(map[string]any, len(h.fixed)+len(attrs))
	for k, v := range h.fixed {
		clone.fixed[k] = v
	}
	for _, a := range attrs {
		addExtra(clone.fixed, h.groups, a)
	}
	return &clone
}

func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// GELF additional fields are prefixed with an underscore.
func addExtra(extra map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := append(append([]string(nil), groups...), a.Key)
		for _, ga := range v.Group() {
			addExtra(extra, sub, ga)
		}
		return
	}
	if err, ok := v.Any().(error); ok {
		extra["_"+key] = err.Error()
		return
	}
	extra["_"+key] = v.Any()
}

func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return gelf.LOG_ERR
	case l >= slog.LevelWarn:
		return gelf.LOG_WARNING
	case l >= slog.LevelInfo:
		return gelf.LOG_INFO
	default:
		return gelf.LOG_DEBUG
	}
}
