package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Level mirrors the LOG_LEVEL values understood by the service.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var (
	minLevel = LevelInfo
	base     zerolog.Logger
)

// At package initialisation build the shared zerolog logger from
// LOG_LEVEL (debug|info|error) and LOG_FORMAT (json|console).
func init() {
	Configure(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Configure rebuilds the shared logger.  It is called once from init and
// may be called again by tests to capture output.
func Configure(out io.Writer, level, format string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		minLevel = LevelDebug
	case "error":
		minLevel = LevelError
	default:
		minLevel = LevelInfo
	}
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(out).Level(zerologLevel(minLevel)).With().
		Timestamp().
		Str("service", "whatsapp-rest").
		Logger()
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Entry carries a chat identifier and a message identifier which are
// included in log output as structured fields.
type Entry struct {
	Chat      string
	MessageID string
}

// WithChat constructs a new Entry for logs about a particular chat.
func WithChat(chat string) *Entry {
	return &Entry{Chat: chat}
}

// WithMessageID returns a copy of the current entry with the
// supplied message ID set.
func (e *Entry) WithMessageID(msgID string) *Entry {
	return &Entry{Chat: e.Chat, MessageID: msgID}
}

func (e *Entry) event(ev *zerolog.Event) *zerolog.Event {
	if e.Chat != "" {
		ev = ev.Str("chat", e.Chat)
	}
	if e.MessageID != "" {
		ev = ev.Str("message_id", e.MessageID)
	}
	return ev
}

// Info emits an informational log message.
func (e *Entry) Info(format string, args ...interface{}) {
	e.event(base.Info()).Msg(fmt.Sprintf(format, args...))
}

// Error emits an error log message.
func (e *Entry) Error(format string, args ...interface{}) {
	e.event(base.Error()).Msg(fmt.Sprintf(format, args...))
}

// Debug emits a debug log message gated by LOG_LEVEL.
func (e *Entry) Debug(format string, args ...interface{}) {
	e.event(base.Debug()).Msg(fmt.Sprintf(format, args...))
}

// Package-level helpers for logs not tied to a particular chat
func Debugf(format string, args ...interface{}) {
	base.Debug().Msg(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	base.Info().Msg(fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	base.Error().Msg(fmt.Sprintf(format, args...))
}

// WA returns a whatsmeow logger for the given module backed by the same
// zerolog output.
func WA(module string) waLog.Logger {
	return waLog.Zerolog(base.With().Str("module", module).Logger())
}
