// Package logifaceadapter bridges this module's Logger interface to
// github.com/joeycumines/logiface, letting a host application plug in any
// of logiface's sinks (zerolog, logrus, stumpy, slog, ...) as the
// destination for scheduler diagnostics instead of the built-in
// DefaultLogger.
package logifaceadapter

import (
	"github.com/joeycumines/logiface"

	"github.com/lc-mm/effection"
)

// Adapter implements effection.Logger by forwarding every Entry to a
// logiface.Logger[E], translating effection.Level into logiface's syslog
// level scale and Entry.Fields into logiface Field calls.
type Adapter[E logiface.Event] struct {
	logger *logiface.Logger[E]
}

// New wraps logger as an effection.Logger.
func New[E logiface.Event](logger *logiface.Logger[E]) *Adapter[E] {
	return &Adapter[E]{logger: logger}
}

// Enabled implements effection.Logger.
func (a *Adapter[E]) Enabled(level effection.Level) bool {
	return a.logger.Level() >= toLogifaceLevel(level)
}

// Log implements effection.Logger.
func (a *Adapter[E]) Log(entry effection.Entry) {
	b := a.logger.Build(toLogifaceLevel(entry.Level))
	if b == nil || !b.Enabled() {
		return
	}
	b = b.Str("category", entry.Category)
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	for k, v := range entry.Fields {
		b = b.Any(k, v)
	}
	b.Log(entry.Message)
}

// toLogifaceLevel maps effection's four-level scale onto logiface's syslog
// scale, picking the syslog level a reader coming from either vocabulary
// would expect for the same severity.
func toLogifaceLevel(level effection.Level) logiface.Level {
	switch level {
	case effection.LevelDebug:
		return logiface.LevelDebug
	case effection.LevelInfo:
		return logiface.LevelInformational
	case effection.LevelWarn:
		return logiface.LevelWarning
	case effection.LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
