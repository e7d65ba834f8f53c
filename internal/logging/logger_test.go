// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
)

// resetGlobal clears the global logger between tests.
func resetGlobal() {
	mu.Lock()
	global = nil
	mu.Unlock()
	once = sync.Once{}
}

// decodeLines parses every JSON line written to buf.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

// =====================================================
// Logger Creation and Initialization Tests
// =====================================================

// TestInit verifies logger initialization.
func TestInit(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	var buf bytes.Buffer
	Init(&buf, LevelInfo)

	logger := Get()
	if logger == nil {
		t.Fatal("Get() returned nil after Init()")
	}
	if logger.out != &buf {
		t.Error("Init() did not set output writer correctly")
	}
	if logger.minLevel != LevelInfo {
		t.Errorf("minLevel = %v, want LevelInfo", logger.minLevel)
	}
}

// TestInit_idempotent verifies Init is idempotent.
func TestInit_idempotent(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	var buf1, buf2 bytes.Buffer
	Init(&buf1, LevelInfo)
	first := Get()

	Init(&buf2, LevelDebug)
	if Get() != first {
		t.Error("Second Init() should be ignored, different logger returned")
	}
	if Get().out != &buf1 {
		t.Error("Second Init() should be ignored, output writer changed")
	}
}

// TestGet_default verifies default logger creation.
func TestGet_default(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	logger := Get()
	if logger.out != os.Stdout {
		t.Error("Get() should default to os.Stdout")
	}
	if logger.minLevel != LevelInfo {
		t.Errorf("minLevel = %v, want LevelInfo", logger.minLevel)
	}
}

// =====================================================
// Output Format Tests
// =====================================================

// TestLogger_jsonFields verifies the structured entry layout.
func TestLogger_jsonFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("drain completed", map[string]interface{}{"visits_succeeded": 3})
	logger.Error("append failed", errors.New("disk full"), map[string]interface{}{"queue": "pending_visits"})
	logger.ErrorWithCode("drain aborted", "STORE_ERROR", errors.New("corrupt"))

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	info := entries[0]
	if info["message"] != "drain completed" {
		t.Errorf("message = %v", info["message"])
	}
	if info["level"] != "info" {
		t.Errorf("level = %v, want info", info["level"])
	}
	if _, ok := info["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
	ctx, ok := info["context"].(map[string]interface{})
	if !ok || ctx["visits_succeeded"] != float64(3) {
		t.Errorf("context = %v", info["context"])
	}

	if entries[1]["error"] != "disk full" {
		t.Errorf("error = %v, want disk full", entries[1]["error"])
	}
	if entries[2]["code"] != "STORE_ERROR" {
		t.Errorf("code = %v, want STORE_ERROR", entries[2]["code"])
	}
}

// TestLogger_levelFilter verifies messages below the minimum are dropped.
func TestLogger_levelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["message"] != "warn" || entries[1]["message"] != "error" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

// TestMerge verifies multiple context maps are merged.
func TestMerge(t *testing.T) {
	if merge() != nil {
		t.Error("merge() with no maps should be nil")
	}

	got := merge(map[string]interface{}{"a": 1}, map[string]interface{}{"b": 2, "a": 3})
	if got["a"] != 3 || got["b"] != 2 {
		t.Errorf("merge() = %v", got)
	}
}

// TestParseLevel verifies config level parsing.
func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"WARN":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"trace": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestGlobalFunctions verifies package-level helpers route to the global logger.
func TestGlobalFunctions(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	var buf bytes.Buffer
	Init(&buf, LevelDebug)

	Debug("d")
	Info("i")
	Warn("w")
	Error("e", errors.New("boom"))
	ErrorWithCode("c", "OFFLINE", nil)

	if got := len(decodeLines(t, &buf)); got != 5 {
		t.Errorf("got %d entries, want 5", got)
	}
}
