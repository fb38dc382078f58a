package postgres

import (
	"context"
	"fmt"

	"github.com/nkiryanov/medipals/internal/repository"
)

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{DB: s.db}
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{DB: s.db}
}

func (s *Storage) Balance() repository.BalanceRepo {
	return &BalanceRepo{DB: s.db}
}

func (s *Storage) BankLink() repository.BankLinkRepo {
	return &BankLinkRepo{DB: s.db}
}

func (s *Storage) Lesson() repository.LessonRepo {
	return &LessonRepo{DB: s.db}
}

func (s *Storage) Booking() repository.BookingRepo {
	return &BookingRepo{DB: s.db}
}

func (s *Storage) Notification() repository.NotificationRepo {
	return &NotificationRepo{DB: s.db}
}

func (s *Storage) Payout() repository.PayoutRepo {
	return &PayoutRepo{DB: s.db}
}

// InTx begins transaction (or savepoint when already in transaction) and passes storage bound to it
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}

		switch err {
		case nil:
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("db tx commit error: %w", commitErr)
			}
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
