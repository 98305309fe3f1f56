package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/sockwrap/internal/protocol/value"
)

func TestParseArg(t *testing.T) {
	cases := []struct {
		kind string
		arg  string
		want value.Value
	}{
		{"auto", "1337", value.Int(1337)},
		{"auto", "2.5", value.Float(2.5)},
		{"auto", "Test", value.String("Test")},
		{"string", "42", value.String("42")},
		{"int", "-7", value.Int(-7)},
		{"float", "3", value.Float(3)},
		{"list", "1, 2, 2.3, Test", value.Seq(1, 2, 2.3, "Test")},
	}
	for _, tc := range cases {
		got, cleanup, err := parseArg(tc.kind, tc.arg)
		if err != nil {
			t.Fatalf("parseArg(%q,%q): %v", tc.kind, tc.arg, err)
		}
		cleanup()
		if !value.Equal(got, tc.want) {
			t.Fatalf("parseArg(%q,%q) = %#v want %#v", tc.kind, tc.arg, got, tc.want)
		}
	}
	if _, _, err := parseArg("int", "x"); err == nil {
		t.Fatalf("expected int parse error")
	}
	if _, _, err := parseArg("bogus", "x"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestParseArgFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Test.txt")
	if err := os.WriteFile(path, []byte("Test"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, cleanup, err := parseArg("file", path)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	defer cleanup()
	f, ok := v.(*value.File)
	if !ok || f.Name != "Test.txt" || f.Size != 4 {
		t.Fatalf("unexpected file value %#v", v)
	}
	if got := describe(f); got != "file(name=Test.txt size=4)" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(value.Seq(1, "a")); got != `(1, "a")` {
		t.Fatalf("unexpected description %q", got)
	}
	if got := describe(value.Zeros(value.KindUint8, 2, 3)); got != "array(shape=[2 3] kind=|u1)" {
		t.Fatalf("unexpected description %q", got)
	}
}
