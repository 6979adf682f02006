// Package logging provides the harness's slog handler: one line per record,
// prefixed by the name of the test that logged it and coloured by level.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// LevelVerbose sits below debug. State dumps from the idle poller use it.
const LevelVerbose = slog.LevelDebug - 4

// TestKey is the attribute holding the test name; the handler renders it as
// the line prefix instead of a key=value pair.
const TestKey = "test"

const prefixWidth = 32

// Options configures a Handler.
type Options struct {
	Level slog.Leveler
	Color bool
}

// Handler writes "<test>:" padded to 32 columns followed by the message and
// attributes, coloured by level.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	colors map[slog.Level]*color.Color
	prefix string
	attrs  string
	group  string
}

// NewHandler returns a handler writing to w.
func NewHandler(w io.Writer, opts *Options) *Handler {
	if opts == nil {
		opts = &Options{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	colors := map[slog.Level]*color.Color{
		slog.LevelError: color.New(color.FgRed),
		slog.LevelWarn:  color.New(color.FgYellow),
		slog.LevelInfo:  color.New(color.FgGreen),
		slog.LevelDebug: color.New(color.FgCyan),
		LevelVerbose:    color.New(color.FgHiBlack),
	}
	for _, c := range colors {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level, colors: colors}
}

// New returns a logger over a Handler.
func New(w io.Writer, level slog.Leveler, colorize bool) *slog.Logger {
	return slog.New(NewHandler(w, &Options{Level: level, Color: colorize}))
}

// ForTest tags logger with a test name.
func ForTest(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String(TestKey, name))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	prefix := h.prefix
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TestKey && h.group == "" {
			prefix = a.Value.String()
			return true
		}
		writeAttr(&b, h.group, a)
		return true
	})

	line := h.colorFor(r.Level).Sprint(b.String()) + "\n"
	if prefix != "" {
		line = fmt.Sprintf("%-*s", prefixWidth, prefix+":") + line
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == TestKey && h.group == "" {
			h2.prefix = a.Value.String()
			continue
		}
		writeAttr(&b, h.group, a)
	}
	h2.attrs = b.String()
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group != "" {
		h2.group = h.group + "." + name
	} else {
		h2.group = name
	}
	return &h2
}

func (h *Handler) colorFor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return h.colors[slog.LevelError]
	case level >= slog.LevelWarn:
		return h.colors[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return h.colors[slog.LevelInfo]
	case level >= slog.LevelDebug:
		return h.colors[slog.LevelDebug]
	default:
		return h.colors[LevelVerbose]
	}
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}

// ParseLevel maps a level name to a slog level. "verbose" is LevelVerbose.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "verbose":
		return LevelVerbose, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
