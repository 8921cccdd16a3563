package logging

import (
	"fmt"
	"time"
)

// ProductTag prefixes every line.
const ProductTag = "MobileMessaging"

// Glyph marks the severity tier of a line.
func Glyph(f Flag) string {
	switch f {
	case FlagDebug, FlagInfo, FlagVerbose:
		return "💬"
	case FlagWarning:
		return "⚠️"
	case FlagError:
		return "‼️"
	}
	return ""
}

// FormatLine renders `<timestamp> [MobileMessaging] <glyph> <message>` with a
// millisecond timestamp.
func FormatLine(ts time.Time, f Flag, message string) string {
	stamp := fmt.Sprintf("%s:%03d", ts.Format("2006-01-02 15:04:05"), ts.Nanosecond()/int(time.Millisecond))
	return fmt.Sprintf("%s [%s] %s %s", stamp, ProductTag, Glyph(f), message)
}
