package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
)

// StripeClient talks to Stripe Connect
// Every bank link gets its own custom connected account holding a single external bank account
type StripeClient struct {
	client *stripe.Client
	logger logger.Logger
}

func NewStripeClient(client *stripe.Client, l logger.Logger) *StripeClient {
	return &StripeClient{client: client, logger: l}
}

func (c *StripeClient) CreateDestinationAccount(ctx context.Context, userID uuid.UUID, details models.BankDetails) (DestinationAccount, error) {
	var dest DestinationAccount

	dob, err := time.Parse(time.DateOnly, details.DateOfBirth)
	if err != nil {
		return dest, NewError(OpCreateDestinationAccount, CodeDeclined, 0, fmt.Errorf("bad date of birth: %w", err))
	}

	firstName, lastName := splitName(details.AccountHolderName)
	individual := &stripe.PersonParams{
		FirstName: stripe.String(firstName),
		LastName:  stripe.String(lastName),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(details.Address.Line1),
			City:       stripe.String(details.Address.City),
			State:      stripe.String(details.Address.State),
			PostalCode: stripe.String(details.Address.PostalCode),
			Country:    stripe.String(details.Address.Country),
		},
		DOB: &stripe.PersonDOBParams{
			Day:   stripe.Int64(int64(dob.Day())),
			Month: stripe.Int64(int64(dob.Month())),
			Year:  stripe.Int64(int64(dob.Year())),
		},
	}
	if details.NationalIDNumber != "" {
		individual.IDNumber = stripe.String(details.NationalIDNumber)
	}
	if details.Email != "" {
		individual.Email = stripe.String(details.Email)
	}

	bank := &stripe.AccountExternalAccountParams{
		AccountHolderName: stripe.String(details.AccountHolderName),
		AccountHolderType: stripe.String("individual"),
		Country:           stripe.String(details.BankCountry),
		Currency:          stripe.String(strings.ToLower(details.Currency)),
	}
	if details.IBAN != "" {
		bank.AccountNumber = stripe.String(details.IBAN)
	} else {
		bank.AccountNumber = stripe.String(details.AccountNumber)
		bank.RoutingNumber = stripe.String(details.RoutingNumber)
	}

	params := &stripe.AccountCreateParams{
		Type:         stripe.String(string(stripe.AccountTypeCustom)),
		Country:      stripe.String(details.Address.Country),
		BusinessType: stripe.String("individual"),
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			Transfers: &stripe.AccountCreateCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
		Individual:      individual,
		ExternalAccount: bank,
		Params: stripe.Params{
			Metadata: map[string]string{
				"user_id": userID.String(),
			},
		},
	}
	if details.Email != "" {
		params.Email = stripe.String(details.Email)
	}

	start := time.Now()
	acct, err := c.client.V1Accounts.Create(ctx, params)
	metrics.RecordProcessorCall(OpCreateDestinationAccount, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to create connected account", "user_id", userID, "error", err)
		return dest, fromStripe(OpCreateDestinationAccount, err)
	}

	dest.AccountID = acct.ID
	if acct.ExternalAccounts != nil && len(acct.ExternalAccounts.Data) > 0 {
		dest.BankAccountID = acct.ExternalAccounts.Data[0].ID
	}

	c.logger.Info("Created connected account", "user_id", userID, "account_id", dest.AccountID, "bank_account_id", dest.BankAccountID)
	return dest, nil
}

func (c *StripeClient) RetrieveAccountRequirements(ctx context.Context, accountID string) ([]string, error) {
	start := time.Now()
	acct, err := c.client.V1Accounts.GetByID(ctx, accountID, nil)
	metrics.RecordProcessorCall(OpRetrieveAccountRequirements, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to retrieve connected account", "account_id", accountID, "error", err)
		return nil, fromStripe(OpRetrieveAccountRequirements, err)
	}

	if acct.Requirements == nil {
		return nil, nil
	}

	unmet := make([]string, 0, len(acct.Requirements.CurrentlyDue)+len(acct.Requirements.PastDue))
	seen := make(map[string]struct{})
	for _, code := range append(acct.Requirements.PastDue, acct.Requirements.CurrentlyDue...) {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unmet = append(unmet, code)
	}
	return unmet, nil
}

func (c *StripeClient) Transfer(ctx context.Context, p TransferParams) (string, error) {
	params := &stripe.TransferCreateParams{
		Amount:      stripe.Int64(MinorUnits(p.Amount)),
		Currency:    stripe.String(strings.ToLower(p.Currency)),
		Destination: stripe.String(p.Destination),
	}
	params.SetIdempotencyKey(p.IdempotencyKey)

	start := time.Now()
	transfer, err := c.client.V1Transfers.Create(ctx, params)
	metrics.RecordProcessorCall(OpTransfer, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to create transfer", "destination", p.Destination, "key", p.IdempotencyKey, "error", err)
		return "", fromStripe(OpTransfer, err)
	}

	c.logger.Info("Transfer created", "transfer_id", transfer.ID, "destination", p.Destination, "amount", p.Amount)
	return transfer.ID, nil
}

func (c *StripeClient) CreatePayout(ctx context.Context, p PayoutParams) (string, error) {
	params := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(MinorUnits(p.Amount)),
		Currency: stripe.String(strings.ToLower(p.Currency)),
	}
	params.SetStripeAccount(p.Account)
	params.SetIdempotencyKey(p.IdempotencyKey)

	start := time.Now()
	payout, err := c.client.V1Payouts.Create(ctx, params)
	metrics.RecordProcessorCall(OpCreatePayout, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to create payout", "account", p.Account, "key", p.IdempotencyKey, "error", err)
		return "", fromStripe(OpCreatePayout, err)
	}

	c.logger.Info("Payout created", "payout_id", payout.ID, "account", p.Account, "amount", p.Amount)
	return payout.ID, nil
}

// RemoveExternalAccount deletes the connected account the bank account is attached to
// Stripe refuses to delete the last external account of a custom account
func (c *StripeClient) RemoveExternalAccount(ctx context.Context, accountID string, bankAccountID string) error {
	start := time.Now()
	_, err := c.client.V1Accounts.Delete(ctx, accountID, nil)
	metrics.RecordProcessorCall(OpRemoveExternalAccount, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to delete connected account", "account_id", accountID, "bank_account_id", bankAccountID, "error", err)
		return fromStripe(OpRemoveExternalAccount, err)
	}

	c.logger.Info("Connected account deleted", "account_id", accountID, "bank_account_id", bankAccountID)
	return nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (PaymentIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(MinorUnits(p.Amount)),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("user_id", p.UserID.String())
	if p.BookingID != nil {
		params.AddMetadata("booking_id", p.BookingID.String())
	}

	start := time.Now()
	pi, err := c.client.V1PaymentIntents.Create(ctx, params)
	metrics.RecordProcessorCall(OpCreatePaymentIntent, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to create payment intent", "user_id", p.UserID, "error", err)
		return PaymentIntent{}, fromStripe(OpCreatePaymentIntent, err)
	}

	return toPaymentIntent(pi), nil
}

func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (PaymentIntent, error) {
	start := time.Now()
	pi, err := c.client.V1PaymentIntents.Retrieve(ctx, id, nil)
	metrics.RecordProcessorCall(OpRetrievePaymentIntent, time.Since(start), err)
	if err != nil {
		c.logger.Error("Failed to retrieve payment intent", "payment_intent_id", id, "error", err)
		return PaymentIntent{}, fromStripe(OpRetrievePaymentIntent, err)
	}

	return toPaymentIntent(pi), nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) PaymentIntent {
	intent := PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
	}

	// Unparsable metadata leaves zero values, they never match a real user or booking
	if id, err := uuid.Parse(pi.Metadata["user_id"]); err == nil {
		intent.UserID = id
	}
	if id, err := uuid.Parse(pi.Metadata["booking_id"]); err == nil {
		intent.BookingID = &id
	}
	return intent
}

// fromStripe keeps the provider error and classifies it by HTTP status
func fromStripe(op string, err error) *Error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return NewError(op, CodeUnavailable, 0, err)
	}

	switch status := serr.HTTPStatusCode; {
	case status == http.StatusTooManyRequests:
		return NewError(op, CodeRateLimited, status, err)
	case status >= http.StatusInternalServerError || status == 0:
		return NewError(op, CodeUnavailable, status, err)
	case status == http.StatusNotFound:
		return NewError(op, CodeNotFound, status, err)
	case status >= http.StatusBadRequest:
		return NewError(op, CodeDeclined, status, err)
	default:
		return NewError(op, CodeUnknown, status, err)
	}
}

func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
