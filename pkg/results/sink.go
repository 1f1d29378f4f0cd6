// Package results persists confirmed credentials.
package results

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Sink receives result lines at shutdown.
type Sink interface {
	Append(lines []string) error
	Location() string
}

// FileSink appends lines to a file. Existing content is never truncated.
type FileSink struct {
	filePath string
	mutex    sync.Mutex
}

// NewFileSink creates a sink for filePath. The file is opened on each Append.
func NewFileSink(filePath string) *FileSink {
	return &FileSink{filePath: filePath}
}

// Append writes each line followed by a newline.
func (s *FileSink) Append(lines []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			file.Close()
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush results file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync results file: %w", err)
	}

	return file.Close()
}

// Location returns the path of the results file.
func (s *FileSink) Location() string {
	return s.filePath
}

// MemorySink keeps lines in memory.
type MemorySink struct {
	mutex sync.Mutex
	lines []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(lines []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lines = append(s.lines, lines...)
	return nil
}

func (s *MemorySink) Location() string {
	return "memory"
}

// Lines returns a copy of everything appended so far.
func (s *MemorySink) Lines() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.lines...)
}
