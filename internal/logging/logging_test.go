package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"json":  FormatJSON,
		"JSON":  FormatJSON,
		"text":  FormatText,
		"tint":  FormatText,
		"human": FormatText,
		"":      FormatAuto,
		"xml":   FormatAuto,
	}
	for in, want := range tests {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandlerAutoIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, FormatAuto, slog.LevelInfo))
	log.Debug("hidden")
	log.Info("clip saved", "path", "/tmp/clip2web/a.png")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "clip saved" || rec["path"] != "/tmp/clip2web/a.png" {
		t.Fatalf("record = %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Error("source attached at info level")
	}
}

func TestNewHandlerDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, FormatJSON, slog.LevelDebug)).Debug("forwarded")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if _, ok := rec["source"]; !ok {
		t.Fatalf("no source at debug level: %v", rec)
	}
}

func TestNewHandlerText(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, FormatText, slog.LevelDebug)).Debug("joined chain", "next", "0x0")
	if out := buf.String(); !strings.Contains(out, "joined chain") || strings.HasPrefix(out, "{") {
		t.Fatalf("output = %q", out)
	}
}
