package payoutreconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

type Consumer struct {
	countWorkers int

	// Processor may ask to slow down
	// Workers wait until the time is up before taking the next attempt
	waitUntil atomic.Int64
	backoff   time.Duration

	payouts  payoutService
	inFlight *sync.Map
	logger   logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.PayoutAttempt) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.PayoutAttempt) {
	for {
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for processor backoff", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case attempt, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			c.replay(ctx, attempt)
		}
	}
}

func (c *Consumer) replay(ctx context.Context, attempt models.PayoutAttempt) {
	defer c.inFlight.Delete(attempt.ID)

	result, err := c.payouts.Replay(ctx, attempt.ID)
	var procErr *processor.Error

	switch {
	case err == nil:
		metrics.PayoutsReplayed.WithLabelValues("completed").Inc()
		c.logger.Info("Payout attempt replayed", "attempt_id", attempt.ID, "from_status", attempt.Status)

	case errors.As(err, &procErr) && procErr.Temporary():
		metrics.PayoutsReplayed.WithLabelValues("failed").Inc()
		c.logger.Warn("Processor unavailable, backing off", "attempt_id", attempt.ID, "backoff", c.backoff, "error", err)
		c.waitUntil.Store(time.Now().Add(c.backoff).UnixMilli())

	case result.Attempt.Status == models.PayoutStatusFailed:
		metrics.PayoutsReplayed.WithLabelValues("failed").Inc()
		c.logger.Error("Payout attempt failed on replay", "attempt_id", attempt.ID, "error", err)

	default:
		// Left unfinished, picked up again on a later tick
		metrics.PayoutsReplayed.WithLabelValues("error").Inc()
		c.logger.Error("Failed to replay payout attempt", "attempt_id", attempt.ID, "error", err)
	}
}
