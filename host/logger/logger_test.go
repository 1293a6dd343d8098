package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
		ok   bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"INFO", zapcore.InfoLevel, true},
		{"", zapcore.InfoLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"trace", zapcore.InfoLevel, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if got != tt.want || (err == nil) != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	o := DefaultOptions()
	o.Color = false
	o.Level = "warn"
	o.Console = &console
	o.File = filepath.Join(t.TempDir(), "foc.log")

	log, err := New(o)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("stale data")
	_ = log.Sync()

	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "WARN") || !strings.Contains(console.String(), "stale data") {
		t.Errorf("console output %q", console.String())
	}
	data, err := os.ReadFile(o.File)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "stale data") {
		t.Errorf("file output %q", data)
	}

	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Errorf("bad level accepted")
	}
}
