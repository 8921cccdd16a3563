package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SlogLevelVerbose is the slog level that maps onto FlagVerbose.
const SlogLevelVerbose = slog.LevelDebug - 4

// Handler is a slog.Handler writing through a Logger.
type Handler struct {
	logger *Logger
	attrs  []slog.Attr
	group  string
}

// FlagForSlog maps a slog level onto a flag.
func FlagForSlog(lv slog.Level) Flag {
	switch {
	case lv >= slog.LevelError:
		return FlagError
	case lv >= slog.LevelWarn:
		return FlagWarning
	case lv >= slog.LevelInfo:
		return FlagInfo
	case lv >= slog.LevelDebug:
		return FlagDebug
	}
	return FlagVerbose
}

func (h *Handler) Enabled(_ context.Context, lv slog.Level) bool {
	return h.logger.Enabled(FlagForSlog(lv))
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	h.logger.Log(FlagForSlog(r.Level), b.String())
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}
