package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// console receives records when Setup gets no file. stdout is reserved for
// bridge responses.
var console io.Writer = os.Stderr

// SlogManager owns the process logger and the OTel provider it feeds.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	context     ContextProvider
}

// NewSlogManager returns a manager whose Logger is slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// normalizeLevel maps a configured level onto the lower-case names zerolog
// understands.
func normalizeLevel(level string) string {
	switch parseLevel(level) {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// SetContextProvider registers a function whose attributes are added to every
// record logged after the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup rebuilds the logger. Text records go to file, or to stderr when file
// is nil; provider adds the OTel bridge and extra handlers (GELF) are appended
// as is.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	if file == nil {
		file = console
	}
	m.logProvider = provider

	text := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: utcTime,
	})
	sinks := append([]slog.Handler{text}, extra...)
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(appScope, otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(WithLiveContext(NewFanout(sinks...), m.context))
	m.logger.Info("Logging initialized", "level", level)
}

// appScope is the instrumentation scope of the OTel log bridge.
const appScope = "highlighter"

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Logger returns the configured logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
