package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeEvents(t *testing.T, data []byte) []Event {
	t.Helper()
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	err := logger.Log(Event{
		Level:     LevelInfo,
		Category:  CategoryDataSource,
		EventType: "changeset.enqueued",
		Version:   3,
		Details:   map[string]any{"inserted": float64(2)},
	})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	events := decodeEvents(t, buf.Bytes())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
	if ev.Category != CategoryDataSource || ev.EventType != "changeset.enqueued" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Version != 3 {
		t.Errorf("Version = %d, want 3", ev.Version)
	}
	if ev.Details["inserted"] != float64(2) {
		t.Errorf("Details = %v", ev.Details)
	}
}

func TestLogEventWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := logger.Log(Event{Timestamp: ts, Level: LevelWarn, Category: CategoryBuild}); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, buf.Bytes())
	if !events[0].Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", events[0].Timestamp, ts)
	}
}

func TestShouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel Level
		level    Level
		want     bool
	}{
		{"debug below info", LevelInfo, LevelDebug, false},
		{"info at info", LevelInfo, LevelInfo, true},
		{"error above warn", LevelWarn, LevelError, true},
		{"warn below error", LevelError, LevelWarn, false},
		{"debug at debug", LevelDebug, LevelDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(nil)
			l.SetMinLevel(tt.minLevel)
			if got := l.shouldLog(tt.level); got != tt.want {
				t.Errorf("shouldLog(%v) with min %v = %v, want %v", tt.level, tt.minLevel, got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.SetMinLevel(LevelDebug)

	logger.Debug(CategoryBuild, "build.started", "debug", nil)
	logger.Info(CategoryBuild, "build.completed", "info", nil)
	logger.Warn(CategoryReconcile, "view.fallback", "warn", nil)
	logger.Error(CategoryView, "view.inconsistent", "error", nil)

	events := decodeEvents(t, buf.Bytes())
	want := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, level := range want {
		if events[i].Level != level {
			t.Errorf("event %d level = %v, want %v", i, events[i].Level, level)
		}
	}
}

func TestWithSource(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf)
	derived := base.WithSource("table")

	derived.Info(CategoryView, "rows.inserted", "", nil)
	base.Info(CategoryView, "rows.inserted", "", nil)

	events := decodeEvents(t, buf.Bytes())
	if events[0].Source != "table" {
		t.Errorf("derived Source = %q, want table", events[0].Source)
	}
	if events[1].Source != "" {
		t.Errorf("base Source = %q, want empty", events[1].Source)
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	if err := l.Info(CategoryBuild, "x", "y", nil); err != nil {
		t.Errorf("nil logger should discard, got %v", err)
	}
	if l.WithSource("x") != nil {
		t.Error("WithSource on nil should stay nil")
	}
	l.SetMinLevel(LevelDebug)
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("warn"); err != nil || lvl != LevelWarn {
		t.Errorf("ParseLevel(warn) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel should reject unknown levels")
	}
}

func TestOpenLoggerSplitsErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := OpenLogger(dir)
	if err != nil {
		t.Fatalf("OpenLogger() error = %v", err)
	}

	logger.Info(CategoryDataSource, "generation.committed", "", nil)
	logger.Error(CategoryBuild, "build.failed", "boom", nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	all, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(decodeEvents(t, all)); n != 2 {
		t.Errorf("events.jsonl has %d events, want 2", n)
	}

	errs, err := os.ReadFile(filepath.Join(dir, "errors.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	errEvents := decodeEvents(t, errs)
	if len(errEvents) != 1 || errEvents[0].EventType != "build.failed" {
		t.Errorf("errors.jsonl = %+v", errEvents)
	}
}

func TestReadRecentEvents(t *testing.T) {
	dir := t.TempDir()
	logger, err := OpenLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		logger.Log(Event{Level: LevelInfo, Category: CategoryBuild, Version: uint64(i + 1)})
	}
	logger.Close()

	events, err := ReadRecentEvents(filepath.Join(dir, "events.jsonl"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Version != 4 || events[1].Version != 5 {
		t.Errorf("ReadRecentEvents = %+v", events)
	}

	if _, err := ReadRecentEvents(filepath.Join(dir, "missing.jsonl"), 1); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	derived := logger.WithSource("worker")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			logger.Info(CategoryBuild, "a", "", nil)
		}()
		go func() {
			defer wg.Done()
			derived.Info(CategoryBuild, "b", "", nil)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 40 {
		t.Fatalf("got %d lines, want 40", len(lines))
	}
	decodeEvents(t, buf.Bytes())
}
