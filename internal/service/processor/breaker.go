package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
)

const breakerName = "payment-processor"

type BreakerConfig struct {
	MaxRequests  uint32        // requests let through in half-open state
	Interval     time.Duration // counts reset period in closed state
	Timeout      time.Duration // open state duration
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerClient guards a processor client with a circuit breaker
// Declined requests and unknown objects are the caller's fault and don't count as failures
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
	logger logger.Logger
}

func NewBreakerClient(client Client, cfg BreakerConfig, l logger.Logger) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				l.Warn("Opening processor circuit", "failures", counts.TotalFailures, "failure_ratio", ratio)
				return true
			}
			return false
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var perr *Error
			return errors.As(err, &perr) && (perr.Code == CodeDeclined || perr.Code == CodeNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			l.Info("Processor circuit state changed", "from", fromStr, "to", toStr)

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerClient{client: client, cb: cb, logger: l}
}

// State is exposed for health reporting
func (b *BreakerClient) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerClient) execute(op string, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		b.logger.Warn("Processor call rejected by circuit breaker", "op", op, "error", err)
		return nil, NewError(op, CodeUnavailable, http.StatusServiceUnavailable, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(float64(b.cb.Counts().ConsecutiveFailures))
		return nil, err
	}
}

func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func (b *BreakerClient) CreateDestinationAccount(ctx context.Context, userID uuid.UUID, details models.BankDetails) (DestinationAccount, error) {
	return castResult[DestinationAccount](b.execute(OpCreateDestinationAccount, func() (any, error) {
		return b.client.CreateDestinationAccount(ctx, userID, details)
	}))
}

func (b *BreakerClient) RetrieveAccountRequirements(ctx context.Context, accountID string) ([]string, error) {
	return castResult[[]string](b.execute(OpRetrieveAccountRequirements, func() (any, error) {
		return b.client.RetrieveAccountRequirements(ctx, accountID)
	}))
}

func (b *BreakerClient) Transfer(ctx context.Context, params TransferParams) (string, error) {
	return castResult[string](b.execute(OpTransfer, func() (any, error) {
		return b.client.Transfer(ctx, params)
	}))
}

func (b *BreakerClient) CreatePayout(ctx context.Context, params PayoutParams) (string, error) {
	return castResult[string](b.execute(OpCreatePayout, func() (any, error) {
		return b.client.CreatePayout(ctx, params)
	}))
}

func (b *BreakerClient) RemoveExternalAccount(ctx context.Context, accountID string, bankAccountID string) error {
	_, err := b.execute(OpRemoveExternalAccount, func() (any, error) {
		return nil, b.client.RemoveExternalAccount(ctx, accountID, bankAccountID)
	})
	return err
}

func (b *BreakerClient) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (PaymentIntent, error) {
	return castResult[PaymentIntent](b.execute(OpCreatePaymentIntent, func() (any, error) {
		return b.client.CreatePaymentIntent(ctx, params)
	}))
}

func (b *BreakerClient) RetrievePaymentIntent(ctx context.Context, id string) (PaymentIntent, error) {
	return castResult[PaymentIntent](b.execute(OpRetrievePaymentIntent, func() (any, error) {
		return b.client.RetrievePaymentIntent(ctx, id)
	}))
}
