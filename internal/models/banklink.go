package models

import (
	"time"

	"github.com/google/uuid"
)

type Address struct {
	Country    string `json:"country" validate:"required,len=2"`
	PostalCode string `json:"postal_code" validate:"required"`
	State      string `json:"state" validate:"required"`
	City       string `json:"city" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
}

// BankDetails is what a user submits to link a bank account
// Either IBAN or AccountNumber together with RoutingNumber must be set
type BankDetails struct {
	AccountHolderName string  `json:"account_holder_name" validate:"required,max=200"`
	DateOfBirth       string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	NationalIDNumber  string  `json:"national_id_number" validate:"omitempty,max=64"`
	Email             string  `json:"email" validate:"omitempty,email"`
	Currency          string  `json:"currency" validate:"required,len=3"`
	Address           Address `json:"address"`
	BankCountry       string  `json:"bank_country" validate:"required,len=2"`
	BankName          string  `json:"bank_name" validate:"required"`
	AccountNumber     string  `json:"account_number" validate:"required_without=IBAN,omitempty,numeric,min=4,max=34"`
	RoutingNumber     string  `json:"routing_number" validate:"required_with=AccountNumber,omitempty,max=34"`
	IBAN              string  `json:"iban" validate:"required_without=AccountNumber,omitempty,alphanum,min=15,max=34"`
}

type BankLink struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UserID    uuid.UUID
	BankDetails

	// Processor side references
	ExternalAccountID     string
	ExternalBankAccountID string
}

// Last4 returns the visible tail of the linked account number or IBAN
func (l BankLink) Last4() string {
	number := l.AccountNumber
	if number == "" {
		number = l.IBAN
	}
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
