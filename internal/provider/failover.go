package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"flightbot/internal/domain"
)

// Failover tries multiple providers in order, falling back to the next one
// when the current fails.
type Failover struct {
	providers []domain.Provider
	logger    *slog.Logger
}

// NewFailover creates a failover chain from the given providers.
// At least one provider is required.
func NewFailover(providers []domain.Provider, logger *slog.Logger) *Failover {
	return &Failover{
		providers: providers,
		logger:    logger,
	}
}

var _ domain.Provider = (*Failover)(nil)

func (f *Failover) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, p := range f.providers {
		if err := p.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy provider in failover chain")
}

// ChatStream tries each provider in order until one starts producing
// output. Once any fragment has reached onDelta the active provider owns
// the completion: failing over mid-stream would replay text the caller
// already consumed.
func (f *Failover) ChatStream(ctx context.Context, messages []domain.ChatMessage, onDelta func(string)) error {
	var lastErr error
	for i, p := range f.providers {
		emitted := false
		guarded := func(delta string) {
			emitted = true
			onDelta(delta)
		}

		err := p.ChatStream(ctx, messages, guarded)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback provider",
					"provider", p.Name(),
					"attempt", i+1,
				)
			}
			return nil
		}
		if emitted {
			return fmt.Errorf("provider %s failed mid-stream: %w", p.Name(), err)
		}
		lastErr = err
		f.logger.Warn("failover: provider failed, trying next",
			"provider", p.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
