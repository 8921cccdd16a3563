package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxLogFiles is how many log files are kept, the current one included.
	DefaultMaxLogFiles = 10
	// DefaultRollingFrequency is how long a file is written before rolling.
	DefaultRollingFrequency = 24 * time.Hour

	logFileName = "mobilemessaging.log"
	// maxLogFileMB caps a file that is never open long enough to roll by age.
	maxLogFileMB = 10
)

// fileSink appends to dir/mobilemessaging.log through lumberjack. The file is
// rolled once it has been open for frequency; lumberjack keeps the rolled
// files as timestamped backups and prunes beyond maxFiles.
type fileSink struct {
	mu        sync.Mutex
	out       *lumberjack.Logger
	frequency time.Duration
	now       func() time.Time
	openedAt  time.Time
	closed    bool
}

func newFileSink(dir string, maxFiles int, frequency time.Duration, now func() time.Time) (*fileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("file output requires a log directory")
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	if frequency <= 0 {
		frequency = DefaultRollingFrequency
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	out := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    maxLogFileMB,
		MaxBackups: maxFiles - 1,
	}
	// an empty write opens (or resumes) the file so a bad directory fails here
	if _, err := out.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", out.Filename, err)
	}
	return &fileSink{out: out, frequency: frequency, now: now, openedAt: now()}, nil
}

// Path is the file currently written to. Rolled files are renamed away from
// it, so it never changes.
func (s *fileSink) Path() string {
	return s.out.Filename
}

func (s *fileSink) WriteLine(_ Flag, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if now := s.now(); now.Sub(s.openedAt) >= s.frequency {
		if err := s.out.Rotate(); err != nil {
			return fmt.Errorf("failed to roll log file %s: %w", s.out.Filename, err)
		}
		s.openedAt = now
	}
	_, err := s.out.Write([]byte(line + "\n"))
	return err
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}
