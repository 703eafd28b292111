package vision

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Adapter bounds a provider call with a timeout and turns every failure into
// a nil classification. A call that outlives the timeout is not cancelled; it
// keeps running until the request context ends and its result is discarded.
type Adapter struct {
	provider Provider
	catalog  []string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAdapter creates an adapter. A nil provider yields an adapter that is
// disabled and never classifies.
func NewAdapter(provider Provider, catalog []string, timeout time.Duration, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		provider: provider,
		catalog:  catalog,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "vision")),
	}
}

// Enabled reports whether a provider is configured.
func (a *Adapter) Enabled() bool {
	return a != nil && a.provider != nil
}

type classifyOutcome struct {
	classification *Classification
	err            error
}

// Classify returns the provider's classification, or nil on timeout, error,
// invalid payload or a done context. It never returns an error.
func (a *Adapter) Classify(ctx context.Context, imageData []byte) *Classification {
	if !a.Enabled() {
		return nil
	}

	done := make(chan classifyOutcome, 1)
	go func() {
		c, err := a.provider.Classify(ctx, imageData, a.catalog)
		done <- classifyOutcome{classification: c, err: err}
	}()

	var deadline <-chan time.Time
	if a.timeout > 0 {
		timer := time.NewTimer(a.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case out := <-done:
		if out.err != nil {
			a.logger.Warn("vision classification failed",
				zap.String("provider", a.provider.Name()),
				zap.Error(out.err))
			return nil
		}
		if out.classification == nil {
			a.logger.Warn("vision provider returned no classification", zap.String("provider", a.provider.Name()))
		}
		return out.classification
	case <-deadline:
		a.logger.Warn("vision classification timed out",
			zap.String("provider", a.provider.Name()),
			zap.Duration("timeout", a.timeout))
		return nil
	case <-ctx.Done():
		return nil
	}
}
