package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options selects the sinks and threshold of a Logger.
type Options struct {
	Output Output
	Level  Level

	// Directory holds rotated log files when OutputFile is selected.
	Directory        string
	MaxFiles         int
	RollingFrequency time.Duration

	// Console defaults to os.Stderr.
	Console io.Writer
}

// DefaultOptions mirrors the SDK defaults: console for debug builds, file for
// release builds, warnings and above.
func DefaultOptions(debugBuild bool, dir string) Options {
	out := OutputFile
	if debugBuild {
		out = OutputConsole
	}
	return Options{
		Output:           out,
		Level:            LevelWarning,
		Directory:        dir,
		MaxFiles:         DefaultMaxLogFiles,
		RollingFrequency: DefaultRollingFrequency,
	}
}

// Logger is the process-scoped logging context. Every change of output or level
// tears the sink set down and rebuilds it from scratch; readers only ever see a
// complete set.
type Logger struct {
	mu     sync.Mutex
	opts   Options
	active atomic.Pointer[sinkSet]

	now           func() time.Time
	newSystemLog  func() (sink, error)
	droppedWrites atomic.Uint64
}

// New builds the initial sink set.
func New(opts Options) (*Logger, error) {
	l := &Logger{
		now:          time.Now,
		newSystemLog: newSystemLogSink,
	}
	if err := l.apply(opts); err != nil {
		return nil, err
	}
	return l, nil
}

// SetOutput replaces the sink set with one built for out.
func (l *Logger) SetOutput(out Output) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	opts := l.opts
	opts.Output = out
	return l.applyLocked(opts)
}

// SetLevel replaces the sink set with one filtering at lv. Unrecognised bit
// patterns resolve to the nearest lower level.
func (l *Logger) SetLevel(lv Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	opts := l.opts
	opts.Level = LevelFromBits(uint32(lv))
	return l.applyLocked(opts)
}

// Output reports the active sinks.
func (l *Logger) Output() Output {
	if set := l.active.Load(); set != nil {
		return set.output
	}
	return OutputNone
}

// Level reports the active threshold.
func (l *Logger) Level() Level {
	if set := l.active.Load(); set != nil {
		return set.level
	}
	return LevelOff
}

// LogFilePath is the current log file, empty unless file output is active.
func (l *Logger) LogFilePath() string {
	set := l.active.Load()
	if set == nil || set.file == nil {
		return ""
	}
	return set.file.Path()
}

// Enabled reports whether a line tagged f would be written.
func (l *Logger) Enabled(f Flag) bool {
	set := l.active.Load()
	return set != nil && set.level.Allows(f) && len(set.sinks) > 0
}

// Log writes message tagged f to every active sink when the threshold allows.
func (l *Logger) Log(f Flag, message string) {
	line := FormatLine(l.now(), f, message)
	for {
		set := l.active.Load()
		if set == nil || !set.level.Allows(f) {
			return
		}
		err := set.write(f, line)
		if errors.Is(err, errSetClosed) {
			// swapped out underneath us; the replacement is already published
			continue
		}
		if err != nil {
			l.droppedWrites.Add(1)
		}
		return
	}
}

func (l *Logger) Errorf(format string, args ...any)   { l.Log(FlagError, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)    { l.Log(FlagWarning, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.Log(FlagInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...any)   { l.Log(FlagDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Verbosef(format string, args ...any) { l.Log(FlagVerbose, fmt.Sprintf(format, args...)) }

// DroppedWrites counts lines a sink failed to write.
func (l *Logger) DroppedWrites() uint64 {
	return l.droppedWrites.Load()
}

// Slog returns a slog.Logger whose records go through this Logger's sinks and
// threshold.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&Handler{logger: l})
}

// Close tears down the active sink set.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old := l.active.Swap(nil); old != nil {
		return old.close()
	}
	return nil
}

func (l *Logger) apply(opts Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(opts)
}

// applyLocked builds the new set completely before publishing it. A failed build
// leaves the previous configuration untouched.
func (l *Logger) applyLocked(opts Options) error {
	next, err := l.build(opts)
	if err != nil {
		return err
	}
	l.opts = opts
	if old := l.active.Swap(next); old != nil {
		return old.close()
	}
	return nil
}

func (l *Logger) build(opts Options) (*sinkSet, error) {
	set := &sinkSet{output: opts.Output, level: LevelFromBits(uint32(opts.Level))}

	if opts.Output.Has(OutputConsole) {
		w := opts.Console
		if w == nil {
			w = os.Stderr
		}
		set.sinks = append(set.sinks, newWriterSink(w))
	}
	if opts.Output.Has(OutputSystemLog) {
		sl, err := l.newSystemLog()
		if err != nil {
			_ = set.close()
			return nil, err
		}
		set.sinks = append(set.sinks, sl)
	}
	if opts.Output.Has(OutputFile) {
		fs, err := newFileSink(opts.Directory, opts.MaxFiles, opts.RollingFrequency, l.now)
		if err != nil {
			_ = set.close()
			return nil, err
		}
		set.file = fs
		set.sinks = append(set.sinks, fs)
	}
	return set, nil
}
