package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string
	JSON  bool
	// Output defaults to stderr.
	Output io.Writer
	// Components overrides Level per component name, e.g. {"sarama": "debug"}.
	Components map[string]string
}

// state is swapped whole on Configure so loggers handed out earlier keep a
// consistent view.
type state struct {
	handler   slog.Handler
	level     slog.Level
	overrides map[string]slog.Level
}

var current atomic.Pointer[state]

func init() {
	Configure(Options{})
}

func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	st := &state{
		level:     ParseLevel(opts.Level),
		overrides: make(map[string]slog.Level, len(opts.Components)),
	}
	floor := st.level
	for name, lvl := range opts.Components {
		l := ParseLevel(lvl)
		st.overrides[strings.TrimSpace(name)] = l
		floor = min(floor, l)
	}
	// The handler admits the lowest configured level; gating happens per
	// logger in gate.
	cfg := &slog.HandlerOptions{Level: floor}
	if opts.JSON {
		st.handler = slog.NewJSONHandler(out, cfg)
	} else {
		st.handler = slog.NewTextHandler(out, cfg)
	}
	current.Store(st)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the default logger.
func L() *slog.Logger {
	st := current.Load()
	return slog.New(gate{min: st.level, next: st.handler})
}

// Component returns a logger tagged with a component name and gated at that
// component's level.
func Component(name string) *slog.Logger {
	st := current.Load()
	lvl, ok := st.overrides[name]
	if !ok {
		lvl = st.level
	}
	return slog.New(gate{min: lvl, next: st.handler}).With("component", name)
}

// InitFromEnv reads KOMPRENDER_LOG_LEVEL, KOMPRENDER_LOG_JSON and
// KOMPRENDER_LOG_COMPONENTS ("sarama=debug,consume=warn").
func InitFromEnv() {
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("KOMPRENDER_LOG_JSON"))); err == nil {
		json = b
	}
	Configure(Options{
		Level:      os.Getenv("KOMPRENDER_LOG_LEVEL"),
		JSON:       json,
		Components: ParseComponents(os.Getenv("KOMPRENDER_LOG_COMPONENTS")),
	})
}

// ParseComponents reads a comma separated list of name=level pairs. Malformed
// pairs are ignored.
func ParseComponents(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		name, lvl, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out[name] = strings.TrimSpace(lvl)
	}
	return out
}

type gate struct {
	min  slog.Level
	next slog.Handler
}

func (g gate) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= g.min && g.next.Enabled(ctx, l)
}

func (g gate) Handle(ctx context.Context, r slog.Record) error { return g.next.Handle(ctx, r) }

func (g gate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return gate{min: g.min, next: g.next.WithAttrs(attrs)}
}

func (g gate) WithGroup(name string) slog.Handler {
	return gate{min: g.min, next: g.next.WithGroup(name)}
}
