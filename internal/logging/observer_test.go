package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNopObserverIsSilent(t *testing.T) {
	obs := Nop()
	obs.Debugf("x=%d", 1)
	obs.Warnf("warn")
	span := obs.Begin(LevelInfo, "sending")
	span.Progress(1, 2)
	span.End()
}

func TestZerologObserverWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	obs := NewZerolog(zerolog.New(&buf).Level(zerolog.DebugLevel))

	span := obs.Begin(LevelInfo, "receiving file")
	for i := int64(1); i <= 100; i++ {
		span.Progress(i, 100)
	}
	span.End()
	obs.Warnf("sending generic value %s", "record")

	out := buf.String()
	if !strings.Contains(out, `"status":"receiving file"`) {
		t.Fatalf("missing span label: %s", out)
	}
	if got := strings.Count(out, `"message":"progress"`); got != 11 {
		t.Fatalf("expected 11 progress lines, got %d: %s", got, out)
	}
	if !strings.Contains(out, "sending generic value record") {
		t.Fatalf("missing warning: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"trace":   zerolog.TraceLevel,
		"warning": zerolog.WarnLevel,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}
