package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, level LogLevel, format Format) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	SetFormat(format)
	t.Cleanup(func() {
		currentWriter = os.Stderr
		currentLevel = LevelInfo
		currentFormat = FormatText
		rebuildLogger()
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn, FormatText)
	Info("hidden %d", 1)
	Warn("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown 2") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "log_test.go") {
		t.Errorf("call site missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, LevelDebug, FormatJSON)
	Debug("tally %s", "e1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if rec["msg"] != "tally e1" || rec["level"] != "DEBUG" {
		t.Errorf("record = %v", rec)
	}
}

func TestParse(t *testing.T) {
	levels := map[string]LogLevel{"TRACE": LevelTrace, "warning": LevelWarn, "error": LevelError}
	for name, want := range levels {
		if got, ok := ParseLevel(name); !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %t", name, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel accepted an unknown level")
	}
	if f, ok := ParseFormat("JSON"); !ok || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %t", f, ok)
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("ParseFormat accepted xml")
	}
}
