//go:build !windows && !plan9

package logging

import (
	"fmt"
	"log/syslog"
)

type syslogSink struct {
	w *syslog.Writer
}

func newSystemLogSink() (sink, error) {
	w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, ProductTag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system log: %w", err)
	}
	return &syslogSink{w: w}, nil
}

func (s *syslogSink) WriteLine(f Flag, line string) error {
	switch f {
	case FlagError:
		return s.w.Err(line)
	case FlagWarning:
		return s.w.Warning(line)
	case FlagInfo:
		return s.w.Info(line)
	default:
		return s.w.Debug(line)
	}
}

func (s *syslogSink) Close() error {
	return s.w.Close()
}
