// Package logging configures the JSON slog output shared by the lending
// daemon and its packages.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv overrides the minimum level emitted by Setup.
const LevelEnv = "LENDINGD_LOG_LEVEL"

// Options controls the handler built by New.
type Options struct {
	Service string
	Env     string
	Level   slog.Level
	Output  io.Writer
}

// New returns a JSON logger tagged with the service and environment.
// Attributes whose key names a credential are replaced by RedactedValue.
func New(opts Options) *slog.Logger {
	return slog.New(newHandler(opts)).With(baseArgs(opts)...)
}

// Setup installs a JSON logger as the slog default and bridges the standard
// library logger onto it. The level is read from LevelEnv.
func Setup(service, env string) *slog.Logger {
	opts := Options{
		Service: service,
		Env:     env,
		Level:   ParseLevel(os.Getenv(LevelEnv)),
		Output:  os.Stdout,
	}
	handler := newHandler(opts)
	base := slog.New(handler).With(baseArgs(opts)...)
	slog.SetDefault(base)

	attrs := make([]slog.Attr, 0, 2)
	for _, arg := range baseArgs(opts) {
		attrs = append(attrs, arg.(slog.Attr))
	}
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return base
}

// ParseLevel maps debug, info, warn and error onto slog levels. Anything
// else yields info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func newHandler(opts Options) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if IsSensitive(attr.Key) && attr.Value.Kind() == slog.KindString {
				return slog.String(attr.Key, MaskValue(attr.Value.String()))
			}
			return attr
		},
	})
}

func baseArgs(opts Options) []any {
	args := []any{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		args = append(args, slog.String("env", env))
	}
	return args
}
