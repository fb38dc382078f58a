package payoutreconciler

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

type Producer struct {
	interval    time.Duration
	gracePeriod time.Duration
	batchSize   int
	attempts    attemptLister

	// Attempt ids currently handed to workers
	inFlight *sync.Map

	logger logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.PayoutAttempt) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "grace_period", p.gracePeriod, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				attempts, err := p.attempts.ListAttempts(ctx, repository.ListAttemptsOpts{
					Statuses:      []models.PayoutStatus{models.PayoutStatusPending, models.PayoutStatusTransferred, models.PayoutStatusPaidOut},
					UpdatedBefore: time.Now().Add(-p.gracePeriod),
					Limit:         p.batchSize,
				})
				if err != nil {
					p.logger.Error("Failed to list unfinished payout attempts", "error", err)
					continue
				}

				for _, a := range attempts {
					if _, busy := p.inFlight.LoadOrStore(a.ID, struct{}{}); busy {
						continue
					}

					select {
					case <-ctx.Done():
						p.inFlight.Delete(a.ID)
						p.logger.Debug("Producer stopped by context while sending attempts")
						return
					case out <- a:
						p.logger.Debug("Payout attempt sent to replay", "attempt_id", a.ID, "status", a.Status)
					}
				}
			}
		}
	}()

	return idleStopped
}
