package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name                string
	MaxRequests         uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state counter reset
	Timeout             time.Duration // open -> half-open
	ConsecutiveFailures uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "payment-processor",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerProcessor fails fast with ErrUnavailable once the wrapped processor
// keeps failing. Declines and unknown intents are answers, not failures.
type BreakerProcessor struct {
	next Processor
	cb   *gobreaker.CircuitBreaker[*Intent]
}

func NewBreakerProcessor(next Processor, s BreakerSettings, log *zap.Logger) *BreakerProcessor {
	cb := gobreaker.NewCircuitBreaker[*Intent](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrDeclined) ||
				errors.Is(err, ErrIntentNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerProcessor{next: next, cb: cb}
}

func (b *BreakerProcessor) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	return b.execute(func() (*Intent, error) {
		return b.next.CreateIntent(ctx, params)
	})
}

func (b *BreakerProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	return b.execute(func() (*Intent, error) {
		return b.next.GetIntent(ctx, id)
	})
}

func (b *BreakerProcessor) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerProcessor) execute(fn func() (*Intent, error)) (*Intent, error) {
	in, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return in, err
}
