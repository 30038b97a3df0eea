package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitAndLevelString(t *testing.T) {
	Init("debug")
	if got := LevelString(); got != "debug" {
		t.Fatalf("LevelString() = %q, want %q", got, "debug")
	}
	Init("WARN")
	if got := LevelString(); got != "warn" {
		t.Fatalf("LevelString() = %q, want %q", got, "warn")
	}
	Init("Error")
	if got := LevelString(); got != "error" {
		t.Fatalf("LevelString() = %q, want %q", got, "error")
	}
	Init("nonsense")
	if got := LevelString(); got != "info" {
		t.Fatalf("LevelString() = %q, want %q for unknown input", got, "info")
	}
}

func messages(logs *observer.ObservedLogs) map[string]bool {
	out := map[string]bool{}
	for _, e := range logs.All() {
		out[e.Message] = true
	}
	return out
}

func TestLevelFilteringAndPrintln(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := setCore(core)
	defer restore()

	Init("warn")
	Debugf("debug-msg")
	Infof("info-msg")
	Warnf("warn-msg")
	Errorf("error-msg")

	got := messages(logs)
	if got["debug-msg"] {
		t.Fatalf("debug messages should be suppressed at warn level")
	}
	if got["info-msg"] {
		t.Fatalf("info messages should be suppressed at warn level")
	}
	if !got["warn-msg"] {
		t.Fatalf("warn message missing: %v", got)
	}
	if !got["error-msg"] {
		t.Fatalf("error message missing: %v", got)
	}

	logs.TakeAll()
	Println("hello")
	if logs.Len() != 0 {
		t.Fatalf("Println should be suppressed at warn level")
	}

	Init("info")
	Println("hello")
	if !messages(logs)["hello"] {
		t.Fatalf("Println expected at info level, got: %v", logs.All())
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := setCore(core)
	defer restore()
	Init("info")

	With("refNo", "ABC123").Infow("saved")
	entries := logs.FilterField(zap.String("refNo", "ABC123")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry tagged with refNo, got %d", len(entries))
	}
}
