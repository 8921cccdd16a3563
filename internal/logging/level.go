// Package logging configures where the bridge's log lines go and which of them
// pass. The whole sink set is rebuilt on every change and swapped atomically.
package logging

import (
	"fmt"
	"math"
	"strings"
)

// Flag tags a single log line with its severity.
type Flag uint32

const (
	FlagError   Flag = 1 << 0
	FlagWarning Flag = 1 << 1
	FlagInfo    Flag = 1 << 2
	FlagDebug   Flag = 1 << 3
	FlagVerbose Flag = 1 << 4
)

func (f Flag) String() string {
	switch f {
	case FlagError:
		return "error"
	case FlagWarning:
		return "warning"
	case FlagInfo:
		return "info"
	case FlagDebug:
		return "debug"
	case FlagVerbose:
		return "verbose"
	}
	return fmt.Sprintf("flag(%d)", uint32(f))
}

// Level is a threshold expressed as the bitmask of flags it lets through.
type Level uint32

const (
	LevelOff     Level = 0
	LevelError   Level = Level(FlagError)
	LevelWarning Level = LevelError | Level(FlagWarning)
	LevelInfo    Level = LevelWarning | Level(FlagInfo)
	LevelDebug   Level = LevelInfo | Level(FlagDebug)
	LevelVerbose Level = LevelDebug | Level(FlagVerbose)
	LevelAll     Level = math.MaxUint32
)

// Levels lists the recognised levels from least to most inclusive.
var Levels = []Level{LevelOff, LevelError, LevelWarning, LevelInfo, LevelDebug, LevelVerbose, LevelAll}

// Allows reports whether a line tagged f passes the threshold.
func (l Level) Allows(f Flag) bool {
	return uint32(l)&uint32(f) != 0
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelVerbose:
		return "verbose"
	case LevelAll:
		return "all"
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// LevelFromBits maps an arbitrary bit pattern onto a recognised level. Exact
// matches are kept; anything else resolves to the most severe-inclusive level
// whose defining flag is present, down to LevelOff.
func LevelFromBits(bits uint32) Level {
	for _, l := range Levels {
		if uint32(l) == bits {
			return l
		}
	}
	f := Flag(bits)
	switch {
	case f&FlagVerbose != 0:
		return LevelVerbose
	case f&FlagDebug != 0:
		return LevelDebug
	case f&FlagInfo != 0:
		return LevelInfo
	case f&FlagWarning != 0:
		return LevelWarning
	case f&FlagError != 0:
		return LevelError
	}
	return LevelOff
}

// ParseLevel reads a level name as used in configuration files.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "all":
		return LevelAll, nil
	}
	return LevelOff, fmt.Errorf("unknown log level %q", s)
}
