package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWrapsProvidedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Info("hello", "key", "value")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded["msg"] != "hello" || decoded["key"] != "value" {
		t.Fatalf("decoded = %#v", decoded)
	}
}

func TestTraceLogsBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelTrace})))

	l.Trace("deep detail")
	if !strings.Contains(buf.String(), "deep detail") {
		t.Fatalf("output = %q, want it to contain the trace message", buf.String())
	}
}

func TestTraceSuppressedAtDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Trace("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("output = %q, want nothing logged below Debug level", buf.String())
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	l := Nop()
	l.Trace("x")
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"trace": levelTrace,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"huh":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Fatalf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
