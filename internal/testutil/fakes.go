package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

type Published struct {
	Channel string
	Payload []byte
}

// FakePublisher records every published message
type FakePublisher struct {
	mu  sync.Mutex
	Err error

	Messages []Published
}

func (p *FakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, Published{Channel: channel, Payload: payload})
	return nil
}

func (p *FakePublisher) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		channels = append(channels, m.Channel)
	}
	return channels
}

// FakeProcessor mimics a payment processor in memory
// Transfers and payouts are idempotent by key like the real one
// Set Errs[op] to fail the operation
type FakeProcessor struct {
	mu sync.Mutex

	Errs         map[string]error
	Requirements map[string][]string // unmet requirements by account id

	Calls     []string
	Transfers map[string]processor.TransferParams // by transfer id
	Payouts   map[string]processor.PayoutParams   // by payout id
	Removed   []string                            // removed account ids
	Intents   map[string]processor.PaymentIntent  // by payment intent id

	keys map[string]string // idempotency key to result id
	seq  int
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		Errs:         make(map[string]error),
		Requirements: make(map[string][]string),
		Transfers:    make(map[string]processor.TransferParams),
		Payouts:      make(map[string]processor.PayoutParams),
		Intents:      make(map[string]processor.PaymentIntent),
		keys:         make(map[string]string),
	}
}

// Fail makes op return a processor error of the given code
func (f *FakeProcessor) Fail(op string, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errs[op] = processor.NewError(op, code, 0, fmt.Errorf("fake %s failure", op))
}

func (f *FakeProcessor) Heal(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Errs, op)
}

func (f *FakeProcessor) CallsOf(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *FakeProcessor) call(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errs[op]
}

func (f *FakeProcessor) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *FakeProcessor) CreateDestinationAccount(_ context.Context, _ uuid.UUID, _ models.BankDetails) (processor.DestinationAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpCreateDestinationAccount); err != nil {
		return processor.DestinationAccount{}, err
	}
	return processor.DestinationAccount{AccountID: f.nextID("acct"), BankAccountID: f.nextID("ba")}, nil
}

func (f *FakeProcessor) RetrieveAccountRequirements(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpRetrieveAccountRequirements); err != nil {
		return nil, err
	}
	return f.Requirements[accountID], nil
}

func (f *FakeProcessor) Transfer(_ context.Context, params processor.TransferParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpTransfer); err != nil {
		return "", err
	}
	if id, ok := f.keys[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return id, nil
	}

	id := f.nextID("tr")
	f.keys[params.IdempotencyKey] = id
	f.Transfers[id] = params
	return id, nil
}

func (f *FakeProcessor) CreatePayout(_ context.Context, params processor.PayoutParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpCreatePayout); err != nil {
		return "", err
	}
	if id, ok := f.keys[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return id, nil
	}

	id := f.nextID("po")
	f.keys[params.IdempotencyKey] = id
	f.Payouts[id] = params
	return id, nil
}

func (f *FakeProcessor) RemoveExternalAccount(_ context.Context, accountID string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpRemoveExternalAccount); err != nil {
		return err
	}
	f.Removed = append(f.Removed, accountID)
	return nil
}

func (f *FakeProcessor) CreatePaymentIntent(_ context.Context, params processor.PaymentIntentParams) (processor.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpCreatePaymentIntent); err != nil {
		return processor.PaymentIntent{}, err
	}

	id := f.nextID("pi")
	pi := processor.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       params.Amount,
		Currency:     params.Currency,
		UserID:       params.UserID,
		BookingID:    params.BookingID,
	}
	f.Intents[id] = pi
	return pi, nil
}

func (f *FakeProcessor) RetrievePaymentIntent(_ context.Context, id string) (processor.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(processor.OpRetrievePaymentIntent); err != nil {
		return processor.PaymentIntent{}, err
	}

	pi, ok := f.Intents[id]
	if !ok {
		return processor.PaymentIntent{}, processor.NewError(processor.OpRetrievePaymentIntent, processor.CodeNotFound, 404, fmt.Errorf("no such payment_intent: %s", id))
	}
	return pi, nil
}

// Succeed marks the intent as paid by the customer
func (f *FakeProcessor) Succeed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pi := f.Intents[id]
	pi.Status = processor.PaymentIntentSucceeded
	f.Intents[id] = pi
}

// PaidIntent stores a succeeded intent and returns its id
// Pass a nil booking id for a credit purchase
func (f *FakeProcessor) PaidIntent(userID uuid.UUID, amount decimal.Decimal, currency string, bookingID *uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID("pi")
	f.Intents[id] = processor.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       processor.PaymentIntentSucceeded,
		Amount:       amount,
		Currency:     currency,
		UserID:       userID,
		BookingID:    bookingID,
	}
	return id
}
