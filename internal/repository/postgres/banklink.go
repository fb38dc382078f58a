package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
)

type BankLinkRepo struct {
	DB DBTX
}

const bankLinkColumns = `id, created_at, user_id, account_holder_name, date_of_birth, national_id_number, email, currency,
	address_country, address_postal_code, address_state, address_city, address_line1,
	bank_country, bank_name, account_number, routing_number, iban,
	external_account_id, external_bank_account_id`

const createBankLink = `-- name: CreateBankLink
INSERT INTO bank_links (` + bankLinkColumns + `)
VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING ` + bankLinkColumns

func (r *BankLinkRepo) CreateBankLink(ctx context.Context, l models.BankLink) (models.BankLink, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createBankLink,
		l.ID, l.UserID, l.AccountHolderName, l.DateOfBirth, l.NationalIDNumber, l.Email, l.Currency,
		l.Address.Country, l.Address.PostalCode, l.Address.State, l.Address.City, l.Address.Line1,
		l.BankCountry, l.BankName, l.AccountNumber, l.RoutingNumber, l.IBAN,
		l.ExternalAccountID, l.ExternalBankAccountID,
	)
	link, err := pgx.CollectOneRow(rows, rowToBankLink)

	switch code, _ := pgErrorCode(err); {
	case err == nil:
		return link, nil
	case code == pgerrcode.UniqueViolation:
		return link, apperrors.ErrDuplicateBankLink
	case code == pgerrcode.ForeignKeyViolation:
		return link, apperrors.ErrUserNotFound
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

const getBankLink = `-- name: GetBankLink
SELECT ` + bankLinkColumns + ` FROM bank_links
WHERE id = $1
`

func (r *BankLinkRepo) GetBankLink(ctx context.Context, id uuid.UUID) (models.BankLink, error) {
	rows, _ := r.DB.Query(ctx, getBankLink, id)
	link, err := pgx.CollectOneRow(rows, rowToBankLink)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, pgx.ErrNoRows):
		return link, apperrors.ErrBankLinkNotFound
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

const existsBankLink = `-- name: ExistsBankLink
SELECT EXISTS (
	SELECT 1 FROM bank_links
	WHERE user_id = $1
	  AND ((account_number <> '' AND account_number = $2) OR (iban <> '' AND iban = $3))
)
`

func (r *BankLinkRepo) ExistsBankLink(ctx context.Context, userID uuid.UUID, accountNumber string, iban string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, existsBankLink, userID, accountNumber, iban).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

const listBankLinks = `-- name: ListBankLinks
SELECT ` + bankLinkColumns + ` FROM bank_links
WHERE user_id = $1
ORDER BY created_at, id
`

func (r *BankLinkRepo) ListBankLinks(ctx context.Context, userID uuid.UUID) ([]models.BankLink, error) {
	rows, _ := r.DB.Query(ctx, listBankLinks, userID)
	links, err := pgx.CollectRows(rows, rowToBankLink)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return links, nil
}

const deleteBankLink = `-- name: DeleteBankLink
DELETE FROM bank_links
WHERE id = $1 AND user_id = $2
`

func (r *BankLinkRepo) DeleteBankLink(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteBankLink, id, userID)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrBankLinkNotFound
	default:
		return nil
	}
}

func rowToBankLink(row pgx.CollectableRow) (models.BankLink, error) {
	var l models.BankLink
	err := row.Scan(
		&l.ID, &l.CreatedAt, &l.UserID, &l.AccountHolderName, &l.DateOfBirth, &l.NationalIDNumber, &l.Email, &l.Currency,
		&l.Address.Country, &l.Address.PostalCode, &l.Address.State, &l.Address.City, &l.Address.Line1,
		&l.BankCountry, &l.BankName, &l.AccountNumber, &l.RoutingNumber, &l.IBAN,
		&l.ExternalAccountID, &l.ExternalBankAccountID,
	)
	return l, err
}
