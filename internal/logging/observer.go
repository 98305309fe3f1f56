package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Level selects how loud a status span is.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

// Observer receives status and leveled messages from the wire core. It is
// purely for observability: implementations must not block or fail.
type Observer interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Begin(level Level, label string) Span
}

// Span is one in-progress status entry.
type Span interface {
	Progress(done, total int64)
	End()
}

// Nop returns an Observer that discards everything.
func Nop() Observer {
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) Debugf(string, ...any)   {}
func (nopObserver) Infof(string, ...any)    {}
func (nopObserver) Warnf(string, ...any)    {}
func (nopObserver) Begin(Level, string) Span { return nopSpan{} }

type nopSpan struct{}

func (nopSpan) Progress(int64, int64) {}
func (nopSpan) End()                  {}

// NewZerolog adapts a zerolog.Logger into an Observer. Spans log once on
// Begin, at most every 10% on Progress, and once with the elapsed time on End.
func NewZerolog(logger zerolog.Logger) Observer {
	return &zerologObserver{log: logger}
}

type zerologObserver struct {
	log zerolog.Logger
}

func (o *zerologObserver) Debugf(format string, args ...any) {
	o.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (o *zerologObserver) Infof(format string, args ...any) {
	o.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (o *zerologObserver) Warnf(format string, args ...any) {
	o.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (o *zerologObserver) Begin(level Level, label string) Span {
	s := &zerologSpan{log: o.log, level: toZerolog(level), label: label, started: time.Now(), lastPct: -1}
	s.log.WithLevel(s.level).Str("status", label).Msg("begin")
	return s
}

type zerologSpan struct {
	log     zerolog.Logger
	level   zerolog.Level
	label   string
	started time.Time
	lastPct int64
}

func (s *zerologSpan) Progress(done, total int64) {
	if total <= 0 {
		return
	}
	pct := done * 100 / total
	if s.lastPct >= 0 && pct/10 == s.lastPct/10 {
		return
	}
	s.lastPct = pct
	s.log.WithLevel(s.level).Str("status", s.label).Int64("pct", pct).Msg("progress")
}

func (s *zerologSpan) End() {
	s.log.WithLevel(s.level).Str("status", s.label).Dur("elapsed", time.Since(s.started)).Msg("done")
}

func toZerolog(level Level) zerolog.Level {
	switch level {
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
