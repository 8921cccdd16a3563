package logging

import (
	"fmt"
	"strings"
)

// Output is the set of sinks lines are written to.
type Output uint8

const (
	OutputConsole Output = 1 << iota
	OutputSystemLog
	OutputFile

	OutputNone Output = 0
)

// Has reports whether every sink in other is selected.
func (o Output) Has(other Output) bool {
	return other != 0 && o&other == other
}

func (o Output) String() string {
	if o == OutputNone {
		return "none"
	}
	var names []string
	if o.Has(OutputConsole) {
		names = append(names, "console")
	}
	if o.Has(OutputSystemLog) {
		names = append(names, "syslog")
	}
	if o.Has(OutputFile) {
		names = append(names, "file")
	}
	return strings.Join(names, ",")
}

// ParseOutputs reads sink names as used in configuration files.
func ParseOutputs(names []string) (Output, error) {
	var out Output
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "console":
			out |= OutputConsole
		case "syslog", "asl", "system":
			out |= OutputSystemLog
		case "file":
			out |= OutputFile
		default:
			return OutputNone, fmt.Errorf("unknown log output %q", name)
		}
	}
	return out, nil
}
