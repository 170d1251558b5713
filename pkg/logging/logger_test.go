package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewLogger tests logger construction with temp directories
func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		baseDir   string
		outcomeID string
		wantErr   bool
	}{
		{
			name:      "valid directory and outcome ID",
			baseDir:   t.TempDir(),
			outcomeID: "out-123",
			wantErr:   false,
		},
		{
			name:      "creates directories if not exist",
			baseDir:   filepath.Join(t.TempDir(), "nested", "path"),
			outcomeID: "out-456",
			wantErr:   false,
		},
		{
			name:      "empty outcome ID",
			baseDir:   t.TempDir(),
			outcomeID: "",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.baseDir, tt.outcomeID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer logger.Close()

			// Verify logger fields
			if logger.outcomeID != tt.outcomeID {
				t.Errorf("outcomeID = %v, want %v", logger.outcomeID, tt.outcomeID)
			}
			if logger.baseDir != tt.baseDir {
				t.Errorf("baseDir = %v, want %v", logger.baseDir, tt.baseDir)
			}
			if logger.minLevel != LevelInfo {
				t.Errorf("minLevel = %v, want %v", logger.minLevel, LevelInfo)
			}

			// Verify files were created
			outcomesDir := filepath.Join(tt.baseDir, "outcomes")
			if _, err := os.Stat(outcomesDir); os.IsNotExist(err) {
				t.Errorf("outcomes directory not created")
			}

			eventFile := filepath.Join(outcomesDir, tt.outcomeID+".jsonl")
			if _, err := os.Stat(eventFile); os.IsNotExist(err) {
				t.Errorf("outcome log file not created")
			}

			errorFile := filepath.Join(tt.baseDir, "errors.jsonl")
			if _, err := os.Stat(errorFile); os.IsNotExist(err) {
				t.Errorf("errors.jsonl not created")
			}

			killFile := filepath.Join(tt.baseDir, "kills.jsonl")
			if _, err := os.Stat(killFile); os.IsNotExist(err) {
				t.Errorf("kills.jsonl not created")
			}
		})
	}
}

// TestNewLoggerInvalidDirectory tests error handling for invalid directories
func TestNewLoggerInvalidDirectory(t *testing.T) {
	// Create a file where we want a directory
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "file-not-dir")
	if err := os.WriteFile(filePath, []byte("test"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// Try to create logger with a file path instead of directory
	_, err := NewLogger(filePath, "out-1")
	if err == nil {
		t.Fatal("expected error when baseDir is a file, got nil")
	}
}

// TestLogEvent tests the Log method
func TestLogEvent(t *testing.T) {
	baseDir := t.TempDir()
	outcomeID := "out-1"
	logger, err := NewLogger(baseDir, outcomeID)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Test basic event logging
	event := Event{
		Level:     LevelInfo,
		Category:  CategoryExperiment,
		EventType: "transition",
		Message:   "building -> awaiting_launch_gate",
		Details: map[string]any{
			"from": "building",
			"to":   "awaiting_launch_gate",
		},
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}

	// Read back the event from outcome log
	eventFile := filepath.Join(baseDir, "outcomes", outcomeID+".jsonl")
	events, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	logged := events[0]
	if logged.Level != event.Level {
		t.Errorf("Level = %v, want %v", logged.Level, event.Level)
	}
	if logged.Category != event.Category {
		t.Errorf("Category = %v, want %v", logged.Category, event.Category)
	}
	if logged.EventType != event.EventType {
		t.Errorf("EventType = %v, want %v", logged.EventType, event.EventType)
	}
	if logged.Message != event.Message {
		t.Errorf("Message = %v, want %v", logged.Message, event.Message)
	}
	if logged.OutcomeID != outcomeID {
		t.Errorf("OutcomeID = %v, want %v", logged.OutcomeID, outcomeID)
	}
}

// TestLogEventWithTimestamp tests that timestamp is set automatically
func TestLogEventWithTimestamp(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	before := time.Now()
	event := Event{
		Level:     LevelInfo,
		Category:  CategoryGate,
		EventType: "timestamp_test",
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	after := time.Now()

	// Read back the event
	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	logged := events[0]
	if logged.Timestamp.IsZero() {
		t.Error("Timestamp should be set automatically")
	}
	if logged.Timestamp.Before(before) || logged.Timestamp.After(after) {
		t.Errorf("Timestamp %v not in expected range [%v, %v]", logged.Timestamp, before, after)
	}
}

// TestLogErrorEvent tests error events are written to both outcome and error logs
func TestLogErrorEvent(t *testing.T) {
	baseDir := t.TempDir()
	outcomeID := "out-1"
	logger, err := NewLogger(baseDir, outcomeID)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	event := Event{
		Level:     LevelError,
		Category:  CategoryStorage,
		EventType: "error_event",
		Message:   "something went wrong",
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}

	// Verify event in outcome log
	eventFile := filepath.Join(baseDir, "outcomes", outcomeID+".jsonl")
	outcomeEvents, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents (outcome) failed: %v", err)
	}
	if len(outcomeEvents) != 1 {
		t.Errorf("expected 1 event in outcome log, got %d", len(outcomeEvents))
	}

	// Verify event in error log
	errorFile := filepath.Join(baseDir, "errors.jsonl")
	errorEvents, err := ReadRecentEvents(errorFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents (error) failed: %v", err)
	}
	if len(errorEvents) != 1 {
		t.Errorf("expected 1 event in error log, got %d", len(errorEvents))
	}

	if errorEvents[0].Message != event.Message {
		t.Errorf("error log message = %v, want %v", errorEvents[0].Message, event.Message)
	}
}

// TestLogKillEvent tests auto-kill events are duplicated into the kill audit log
func TestLogKillEvent(t *testing.T) {
	baseDir := t.TempDir()
	outcomeID := "out-1"
	logger, err := NewLogger(baseDir, outcomeID)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	event := Event{
		Level:        LevelWarn,
		Category:     CategoryStats,
		EventType:    "auto_kill",
		ExperimentID: "exp-7",
		Message:      "kill threshold breached",
		Details: map[string]any{
			"delta": -0.21,
		},
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}

	// Verify event in outcome log
	eventFile := filepath.Join(baseDir, "outcomes", outcomeID+".jsonl")
	outcomeEvents, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents (outcome) failed: %v", err)
	}
	if len(outcomeEvents) != 1 {
		t.Errorf("expected 1 event in outcome log, got %d", len(outcomeEvents))
	}

	// Verify event in kill log
	killFile := filepath.Join(baseDir, "kills.jsonl")
	killEvents, err := ReadRecentEvents(killFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents (kill) failed: %v", err)
	}
	if len(killEvents) != 1 {
		t.Errorf("expected 1 event in kill log, got %d", len(killEvents))
	}

	if killEvents[0].ExperimentID != "exp-7" {
		t.Errorf("kill log experiment = %v, want exp-7", killEvents[0].ExperimentID)
	}
}

// TestSetMinLevel tests level filtering
func TestSetMinLevel(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Default level is Info, so Debug should be filtered
	logger.Log(Event{
		Level:     LevelDebug,
		Category:  CategoryPortfolio,
		EventType: "debug_event",
	})

	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, _ := ReadRecentEvents(eventFile, 10)
	if len(events) != 0 {
		t.Errorf("expected 0 events (debug filtered), got %d", len(events))
	}

	// Change to Debug level
	logger.SetMinLevel(LevelDebug)

	logger.Log(Event{
		Level:     LevelDebug,
		Category:  CategoryPortfolio,
		EventType: "debug_event_2",
	})

	events, _ = ReadRecentEvents(eventFile, 10)
	if len(events) != 1 {
		t.Errorf("expected 1 event after SetMinLevel(Debug), got %d", len(events))
	}

	// Change to Error level - Info should be filtered
	logger.SetMinLevel(LevelError)

	logger.Log(Event{
		Level:     LevelInfo,
		Category:  CategoryPortfolio,
		EventType: "info_event",
	})

	events, _ = ReadRecentEvents(eventFile, 10)
	if len(events) != 1 {
		t.Errorf("expected 1 event (info filtered), got %d", len(events))
	}

	logger.Log(Event{
		Level:     LevelError,
		Category:  CategoryPortfolio,
		EventType: "error_event",
	})

	events, _ = ReadRecentEvents(eventFile, 10)
	if len(events) != 2 {
		t.Errorf("expected 2 events (error logged), got %d", len(events))
	}
}

// TestShouldLog tests the shouldLog method indirectly
func TestShouldLog(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"debug level allows debug", LevelDebug, LevelDebug, true},
		{"debug level allows info", LevelDebug, LevelInfo, true},
		{"debug level allows warn", LevelDebug, LevelWarn, true},
		{"debug level allows error", LevelDebug, LevelError, true},
		{"info level blocks debug", LevelInfo, LevelDebug, false},
		{"info level allows info", LevelInfo, LevelInfo, true},
		{"info level allows warn", LevelInfo, LevelWarn, true},
		{"info level allows error", LevelInfo, LevelError, true},
		{"warn level blocks debug", LevelWarn, LevelDebug, false},
		{"warn level blocks info", LevelWarn, LevelInfo, false},
		{"warn level allows warn", LevelWarn, LevelWarn, true},
		{"warn level allows error", LevelWarn, LevelError, true},
		{"error level blocks debug", LevelError, LevelDebug, false},
		{"error level blocks info", LevelError, LevelInfo, false},
		{"error level blocks warn", LevelError, LevelWarn, false},
		{"error level allows error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.SetMinLevel(tt.minLevel)
			result := logger.shouldLog(tt.logLevel)
			if result != tt.shouldLog {
				t.Errorf("shouldLog(%v) with minLevel %v = %v, want %v",
					tt.logLevel, tt.minLevel, result, tt.shouldLog)
			}
		})
	}
}

// TestHelpers tests the level helper methods
func TestHelpers(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	logger.SetMinLevel(LevelDebug)

	if err := logger.Debug(CategoryStats, "poll", "poll started", map[string]any{"experiment": "exp-1"}); err != nil {
		t.Fatalf("Debug() failed: %v", err)
	}
	if err := logger.Info(CategoryGate, "created", "gate created", nil); err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if err := logger.Warn(CategoryConflict, "detected", "overlap detected", nil); err != nil {
		t.Fatalf("Warn() failed: %v", err)
	}
	if err := logger.Error(CategoryNotify, "send_failed", "webhook failed", nil); err != nil {
		t.Fatalf("Error() failed: %v", err)
	}

	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, err := ReadRecentEvents(eventFile, 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	wantLevels := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
	wantCategories := []Category{CategoryStats, CategoryGate, CategoryConflict, CategoryNotify}
	for i, event := range events {
		if event.Level != wantLevels[i] {
			t.Errorf("event %d Level = %v, want %v", i, event.Level, wantLevels[i])
		}
		if event.Category != wantCategories[i] {
			t.Errorf("event %d Category = %v, want %v", i, event.Category, wantCategories[i])
		}
	}
}

// TestEventWithExplicitIDs tests that explicit IDs are not overwritten
func TestEventWithExplicitIDs(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "default-outcome")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	event := Event{
		Level:        LevelInfo,
		Category:     CategoryGate,
		EventType:    "test",
		OutcomeID:    "explicit-outcome",
		ExperimentID: "explicit-experiment",
		GateID:       "explicit-gate",
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}

	eventFile := filepath.Join(baseDir, "outcomes", "default-outcome.jsonl")
	events, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	logged := events[0]
	if logged.OutcomeID != "explicit-outcome" {
		t.Errorf("OutcomeID = %v, want explicit-outcome", logged.OutcomeID)
	}
	if logged.ExperimentID != "explicit-experiment" {
		t.Errorf("ExperimentID = %v, want explicit-experiment", logged.ExperimentID)
	}
	if logged.GateID != "explicit-gate" {
		t.Errorf("GateID = %v, want explicit-gate", logged.GateID)
	}
}

// TestClose tests cleanup of log files
func TestClose(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	// Log something
	logger.Info(CategoryOutcome, "test", "test", nil)

	// Close logger
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Verify files still exist and are readable
	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, err := ReadRecentEvents(eventFile, 1)
	if err != nil {
		t.Fatalf("ReadRecentEvents after Close() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event after Close(), got %d", len(events))
	}
}

// TestReadRecentEvents tests reading events with different counts
func TestReadRecentEvents(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Log multiple events
	for i := 0; i < 10; i++ {
		logger.Info(CategoryExperiment, "test", "message", map[string]any{
			"index": i,
		})
	}

	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")

	tests := []struct {
		name      string
		count     int
		wantCount int
	}{
		{"read last 5", 5, 5},
		{"read last 10", 10, 10},
		{"read more than exist", 20, 10},
		{"read 0", 0, 0},
		{"read 1", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ReadRecentEvents(eventFile, tt.count)
			if err != nil {
				t.Fatalf("ReadRecentEvents failed: %v", err)
			}
			if len(events) != tt.wantCount {
				t.Errorf("got %d events, want %d", len(events), tt.wantCount)
			}
		})
	}
}

// TestReadRecentEventsNonexistent tests reading from nonexistent file
func TestReadRecentEventsNonexistent(t *testing.T) {
	_, err := ReadRecentEvents("/nonexistent/path/file.jsonl", 10)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// TestReadRecentEventsOrder tests that events are returned in correct order
func TestReadRecentEventsOrder(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Log events with sequential messages
	for i := 0; i < 5; i++ {
		logger.Info(CategoryExperiment, "test", "", map[string]any{
			"seq": float64(i),
		})
	}

	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, err := ReadRecentEvents(eventFile, 5)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	// Verify events are in order
	for i, event := range events {
		seq, ok := event.Details["seq"]
		if !ok {
			t.Fatalf("event %d missing seq in Details", i)
		}
		seqFloat, ok := seq.(float64)
		if !ok {
			t.Fatalf("event %d seq is not float64: %T", i, seq)
		}
		if int(seqFloat) != i {
			t.Errorf("event %d has seq=%v, want %d", i, seqFloat, i)
		}
	}
}

// TestConcurrentWrites tests thread safety of logging
func TestConcurrentWrites(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Launch multiple goroutines writing concurrently
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 10; j++ {
				logger.Info(CategoryExperiment, "concurrent", "", map[string]any{
					"goroutine": id,
					"iteration": j,
				})
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Verify all events were written
	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	events, err := ReadRecentEvents(eventFile, 200)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}

	// Should have 100 events (10 goroutines * 10 iterations)
	if len(events) != 100 {
		t.Errorf("expected 100 events, got %d", len(events))
	}
}

// TestJSONLFormat tests that output is valid JSONL
func TestJSONLFormat(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "out-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Log a few events
	for i := 0; i < 3; i++ {
		logger.Info(CategoryExperiment, "test", "", nil)
	}

	// Read raw file and verify each line is valid JSON
	eventFile := filepath.Join(baseDir, "outcomes", "out-1.jsonl")
	data, err := os.ReadFile(eventFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	file, err := os.Open(eventFile)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer file.Close()

	lines := 0
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			break
		}
		lines++
	}

	if lines != 3 {
		t.Errorf("expected 3 valid JSON lines, got %d", lines)
	}

	// Verify file ends with newline
	if len(data) > 0 && data[len(data)-1] != '\n' {
		t.Error("JSONL file should end with newline")
	}
}
