package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryOutcome    Category = "outcome"
	CategoryExperiment Category = "experiment"
	CategoryPortfolio  Category = "portfolio"
	CategoryGate       Category = "gate"
	CategoryStats      Category = "stats"
	CategoryConflict   Category = "conflict"
	CategoryNotify     Category = "notify"
	CategoryStorage    Category = "storage"
	CategorySignal     Category = "signal"
	CategoryAPI        Category = "api"
)

// Event represents a structured log event
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Level        Level             `json:"level"`
	Category     Category          `json:"category"`
	EventType    string            `json:"type"`
	OutcomeID    string            `json:"outcome_id,omitempty"`
	ExperimentID string            `json:"experiment_id,omitempty"`
	GateID       string            `json:"gate_id,omitempty"`
	Details      map[string]any    `json:"details,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// Logger writes structured events to multiple destinations
type Logger struct {
	outcomeID string
	baseDir   string
	eventFile *os.File
	errorFile *os.File
	killFile  *os.File
	mu        sync.Mutex
	minLevel  Level
}

// NewLogger creates a new structured logger. Events are appended to
// per-outcome JSONL files under baseDir, with errors and kill decisions
// duplicated into dedicated logs.
func NewLogger(baseDir, outcomeID string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	outcomesDir := filepath.Join(baseDir, "outcomes")
	if err := os.MkdirAll(outcomesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outcomes directory: %w", err)
	}

	eventFile, err := os.OpenFile(
		filepath.Join(outcomesDir, outcomeID+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome log: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		eventFile.Close()
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	killFile, err := os.OpenFile(
		filepath.Join(baseDir, "kills.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		eventFile.Close()
		errorFile.Close()
		return nil, fmt.Errorf("failed to open kill log: %w", err)
	}

	return &Logger{
		outcomeID: outcomeID,
		baseDir:   baseDir,
		eventFile: eventFile,
		errorFile: errorFile,
		killFile:  killFile,
		minLevel:  LevelInfo,
	}, nil
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Log writes an event to appropriate destinations
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Set outcome ID if not provided
	if event.OutcomeID == "" {
		event.OutcomeID = l.outcomeID
	}

	// Check min level
	if !l.shouldLog(event.Level) {
		return nil
	}

	// Marshal event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	// Write to outcome log
	if l.eventFile != nil {
		if _, err := l.eventFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to outcome log: %w", err)
		}
	}

	// Write errors to error log
	if event.Level == LevelError && l.errorFile != nil {
		if _, err := l.errorFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to error log: %w", err)
		}
	}

	// Kill decisions get their own audit log
	if event.EventType == "auto_kill" && l.killFile != nil {
		if _, err := l.killFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to kill log: %w", err)
		}
	}

	return nil
}

// shouldLog checks if event should be logged based on level
func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// Helper methods for common log patterns

// Debug logs a debug event
func (l *Logger) Debug(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelDebug,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Info logs an info event
func (l *Logger) Info(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelInfo,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Warn logs a warning event
func (l *Logger) Warn(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelWarn,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Error logs an error event
func (l *Logger) Error(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelError,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Close closes all log files
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.eventFile != nil {
		if err := l.eventFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.errorFile != nil {
		if err := l.errorFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.killFile != nil {
		if err := l.killFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing log files: %v", errs)
	}
	return nil
}

// ReadRecentEvents reads the last N events from an outcome log
func ReadRecentEvents(logPath string, count int) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer file.Close()

	var lines []string
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			break
		}
		data, _ := json.Marshal(event)
		lines = append(lines, string(data))
	}

	// Return last N lines
	start := 0
	if len(lines) > count {
		start = len(lines) - count
	}

	events := make([]Event, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err == nil {
			events = append(events, event)
		}
	}

	return events, nil
}
