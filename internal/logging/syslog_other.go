//go:build windows || plan9

package logging

import "errors"

func newSystemLogSink() (sink, error) {
	return nil, errors.New("system log output is not supported on this platform")
}
