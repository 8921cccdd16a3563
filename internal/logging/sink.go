package logging

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// errSetClosed is returned by a set that was replaced while a write raced it.
var errSetClosed = errors.New("sink set closed")

// sink is one output destination.
type sink interface {
	WriteLine(f Flag, line string) error
	Close() error
}

// writerSink writes lines to an io.Writer (the console sink).
type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newWriterSink(w io.Writer) *writerSink {
	return &writerSink{w: w}
}

func (s *writerSink) WriteLine(_ Flag, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, line)
	return err
}

func (s *writerSink) Close() error { return nil }

// sinkSet is one complete, immutable configuration. It is built in full before
// it becomes visible and closed only after it has been replaced.
type sinkSet struct {
	mu     sync.RWMutex
	closed bool
	output Output
	level  Level
	sinks  []sink
	file   *fileSink
}

func (s *sinkSet) write(f Flag, line string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSetClosed
	}
	var firstErr error
	for _, sk := range s.sinks {
		if err := sk.WriteLine(f, line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// close waits for in-flight writes, then releases every sink.
func (s *sinkSet) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, sk := range s.sinks {
		if err := sk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
