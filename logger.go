package potluck

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// GenerationLogger records one entry per recipe generation attempt.
type GenerationLogger interface {
	LogGeneration(entry GenerationLog) error
}

// NewGenerationLogFilePath returns a file path keyed by time and a cleaned up provider name.
func NewGenerationLogFilePath(provider string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(provider), ":", "_"),
	)
}

// GenerationLog is a single call to the generation capability.
type GenerationLog struct {
	SessionID   string        `json:"session_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Cuisine     string        `json:"cuisine"`
	Ingredients []string      `json:"ingredients"`
	Preferences Preferences   `json:"preferences"`
	Duration    time.Duration `json:"duration_ns"`
	Recipes     []string      `json:"recipes,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// FileGenerationLogger accumulates entries and writes them out on Flush.
type FileGenerationLogger struct {
	mu      sync.Mutex
	entries []GenerationLog
	writer  io.Writer
}

func NewFileGenerationLogger(writer io.Writer) *FileGenerationLogger {
	return &FileGenerationLogger{
		entries: make([]GenerationLog, 0),
		writer:  writer,
	}
}

func (l *FileGenerationLogger) LogGeneration(entry GenerationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Flush writes all buffered entries and clears the buffer.
func (l *FileGenerationLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"generations": map[string]any{
			"timestamp": time.Now(),
			"entries":   l.entries,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal generation log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write generation log: %w", err)
	}

	l.entries = l.entries[:0]
	return nil
}

type NoOpGenerationLogger struct{}

func NewNoOpGenerationLogger() *NoOpGenerationLogger {
	return &NoOpGenerationLogger{}
}

func (NoOpGenerationLogger) LogGeneration(GenerationLog) error {
	return nil
}

// StdoutGenerationLogger writes each entry as a JSON line (for Lambda/CloudWatch).
type StdoutGenerationLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdoutGenerationLogger() *StdoutGenerationLogger {
	return &StdoutGenerationLogger{w: os.Stdout}
}

func (l *StdoutGenerationLogger) LogGeneration(entry GenerationLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintln(l.w, string(data))
	return err
}
