// Package logging configures the process-wide structured logger.
//
// Grounded on ManuGH-xg2g's internal/log package: a package-level
// configurable zerolog.Logger plus a context-carried correlation id, far
// simpler than the teacher's own logging (the teacher calls the stdlib
// log package directly throughout cmd/api/main.go and internal/services).
// This generalizes "Println everywhere" into structured, leveled logging
// so every failure can carry a job's correlation_id per spec.md §7.
package logging

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the global logger.
type Config struct {
	Level   string    // "debug", "info", "warn", "error"; default "info"
	Output  io.Writer // default os.Stdout
	Service string    // default "aura-video-studio-engine"
	Version string
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	Configure(Config{})
}

// Configure (re)initializes the global logger.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "aura-video-studio-engine"
	}

	base = zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()
}

// L returns the global logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &base
}

type correlationIDKey struct{}

// WithCorrelationID attaches a job/request correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the correlation id carried by ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// FromContext returns a logger with the ctx's correlation_id field
// attached, if any. Every stage/provider error and event should be logged
// through this so a job's logs and its event stream share one id, per
// spec.md §7 ("all failures preserve the correlation_id").
func FromContext(ctx context.Context) zerolog.Logger {
	l := L()
	if id := CorrelationID(ctx); id != "" {
		return l.With().Str("correlation_id", id).Logger()
	}
	return *l
}

// WithComponent returns a logger scoped to component, e.g. "orchestrator",
// "supervisor", for subsystem-level log filtering.
func WithComponent(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}
