package banklink

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/service/processor"
	"github.com/nkiryanov/medipals/internal/service/validate"
)

type BankLinkService struct {
	storage   repository.Storage
	processor processor.Client
	logger    logger.Logger
}

func NewService(storage repository.Storage, client processor.Client, l logger.Logger) *BankLinkService {
	return &BankLinkService{storage: storage, processor: client, logger: l}
}

// LinkBank registers a payout destination for the user
// The processor account is created first, the link is stored only after that succeeds
func (s *BankLinkService) LinkBank(ctx context.Context, userID uuid.UUID, details models.BankDetails) (models.BankLink, error) {
	var link models.BankLink

	details.IBAN = normalizeIBAN(details.IBAN)
	if err := validate.Struct(details); err != nil {
		return link, err
	}

	exists, err := s.storage.BankLink().ExistsBankLink(ctx, userID, details.AccountNumber, details.IBAN)
	switch {
	case err != nil:
		return link, err
	case exists:
		return link, apperrors.ErrDuplicateBankLink
	}

	// Processor calls run to completion even if the caller gives up
	pctx := context.WithoutCancel(ctx)

	dest, err := s.processor.CreateDestinationAccount(pctx, userID, details)
	if err != nil {
		return link, apperrors.NewExternalServiceError(processor.OpCreateDestinationAccount, err)
	}

	link, err = s.storage.BankLink().CreateBankLink(ctx, models.BankLink{
		UserID:                userID,
		BankDetails:           details,
		ExternalAccountID:     dest.AccountID,
		ExternalBankAccountID: dest.BankAccountID,
	})
	if err != nil {
		if rerr := s.processor.RemoveExternalAccount(pctx, dest.AccountID, dest.BankAccountID); rerr != nil {
			s.logger.Error("Orphaned processor account left after failed link",
				"user_id", userID, "account_id", dest.AccountID, "bank_account_id", dest.BankAccountID, "error", rerr)
		}
		return link, err
	}

	s.logger.Info("Bank linked", "user_id", userID, "bank_link_id", link.ID, "last4", link.Last4())
	return link, nil
}

// UnlinkBank removes the processor destination first, the local link goes only if that succeeds
func (s *BankLinkService) UnlinkBank(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	link, err := s.GetBankLink(ctx, userID, id)
	if err != nil {
		return err
	}

	err = s.processor.RemoveExternalAccount(context.WithoutCancel(ctx), link.ExternalAccountID, link.ExternalBankAccountID)
	if err != nil {
		return apperrors.NewExternalServiceError(processor.OpRemoveExternalAccount, err)
	}

	if err := s.storage.BankLink().DeleteBankLink(ctx, userID, id); err != nil {
		s.logger.Error("Bank link removed at processor but not locally", "bank_link_id", id, "error", err)
		return err
	}

	s.logger.Info("Bank unlinked", "user_id", userID, "bank_link_id", id)
	return nil
}

// GetBankLink returns the link only to its owner, others see it as missing
func (s *BankLinkService) GetBankLink(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.BankLink, error) {
	link, err := s.storage.BankLink().GetBankLink(ctx, id)

	switch {
	case err != nil:
		return link, err
	case link.UserID != userID:
		return models.BankLink{}, apperrors.ErrBankLinkNotFound
	default:
		return link, nil
	}
}

func (s *BankLinkService) ListBankLinks(ctx context.Context, userID uuid.UUID) ([]models.BankLink, error) {
	return s.storage.BankLink().ListBankLinks(ctx, userID)
}


// normalizeIBAN drops the spaces of the printed form, IBANs are stored upper case
func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}
