package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// PlatformLogger is implemented by the shell; each call carries one fully
// formatted log line.
type PlatformLogger interface {
	Log(level string, line string)
}

// platformHandler adapts a PlatformLogger to slog.Handler. Attributes and
// groups are flattened into "key=value" pairs appended to the message.
type platformHandler struct {
	sink  PlatformLogger
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func (h *platformHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *platformHandler) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)

	appendAttr := func(a slog.Attr) {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Any())
	}

	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})

	h.sink.Log(rec.Level.String(), b.String())
	return nil
}

func (h *platformHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &platformHandler{sink: h.sink, level: h.level, attrs: merged, group: h.group}
}

func (h *platformHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &platformHandler{sink: h.sink, level: h.level, attrs: h.attrs, group: group}
}

var (
	defaultMu     sync.Mutex
	defaultLogger Logger = NewSlogLogger(slog.Default())
)

// EnablePlatformLogging routes the process-wide default logger through the
// platform logger callback. Called once at startup by the shell; calling it
// again just swaps the sink.
func EnablePlatformLogging(sink PlatformLogger, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = NewSlogLogger(slog.New(&platformHandler{sink: sink, level: level}))
}

// Default returns the process-wide logger.
func Default() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLogger
}
