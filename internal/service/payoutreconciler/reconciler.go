package payoutreconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

const (
	defaultCountWorkers    = 4                // Number of workers replaying attempts
	defaultProduceInterval = 30 * time.Second // Interval for looking up unfinished attempts
	defaultGracePeriod     = 2 * time.Minute  // Attempts touched more recently may still be running in a request
	defaultBatchSize       = 100
	defaultBackoff         = 30 * time.Second // Pause after the processor asks to slow down
)

type payoutService interface {
	Replay(ctx context.Context, attemptID uuid.UUID) (models.PayoutResult, error)
}

type attemptLister interface {
	ListAttempts(ctx context.Context, opts repository.ListAttemptsOpts) ([]models.PayoutAttempt, error)
}

type Config struct {
	Workers     int
	Interval    time.Duration
	GracePeriod time.Duration
	BatchSize   int
	Backoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultCountWorkers
	}
	if c.Interval <= 0 {
		c.Interval = defaultProduceInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	return c
}

// Reconciler finishes payout attempts interrupted between processor success and ledger commit
type Reconciler struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(payouts payoutService, attempts attemptLister, cfg Config, logger logger.Logger) *Reconciler {
	cfg = cfg.withDefaults()
	inFlight := &sync.Map{}

	return &Reconciler{
		consumer: &Consumer{
			countWorkers: cfg.Workers,
			backoff:      cfg.Backoff,
			payouts:      payouts,
			inFlight:     inFlight,
			logger:       logger,
		},
		producer: &Producer{
			interval:    cfg.Interval,
			gracePeriod: cfg.GracePeriod,
			batchSize:   cfg.BatchSize,
			attempts:    attempts,
			inFlight:    inFlight,
			logger:      logger,
		},
		logger: logger,
	}
}

// Run returns a channel closed after all workers stopped
func (r *Reconciler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	attemptChan := make(chan models.PayoutAttempt)

	producerStopped := r.producer.Produce(ctx, attemptChan)
	consumerStopped := r.consumer.Consume(ctx, attemptChan)

	go func() {
		defer close(idleStopped)
		defer close(attemptChan)
		<-producerStopped
		<-consumerStopped
		r.logger.Debug("Payout reconciler stopped")
	}()

	return idleStopped
}
