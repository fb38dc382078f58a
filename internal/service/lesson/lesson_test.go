package lesson

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func testParams() Params {
	return Params{
		Subject:     "Physics",
		Topic:       "Optics",
		Description: "Lenses, mirrors and why the sky is blue",
		Price:       decimal.RequireFromString("45.50"),
		StartDate:   "2026-11-01",
		EndDate:     "2026-11-30",
	}
}

func TestLessonService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *LessonService, tutor models.User)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			tutor := testutil.CreateUser(t, storage, "tutor", models.RoleTutor)
			fn(NewService(storage), tutor)
		})
	}

	t.Run("create and list", func(t *testing.T) {
		withTx(t, func(s *LessonService, tutor models.User) {
			created, err := s.Create(t.Context(), tutor, testParams())
			require.NoError(t, err)
			require.Equal(t, tutor.ID, created.TutorID)
			require.True(t, created.Price.Equal(decimal.RequireFromString("45.5")))

			got, err := s.Get(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created, got)

			mine, err := s.List(t.Context(), tutor.ID)
			require.NoError(t, err)
			require.Len(t, mine, 1)

			all, err := s.List(t.Context(), uuid.Nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	})

	t.Run("students can't offer lessons", func(t *testing.T) {
		withTx(t, func(s *LessonService, tutor models.User) {
			tutor.Role = models.RoleStudent

			_, err := s.Create(t.Context(), tutor, testParams())

			require.ErrorIs(t, err, apperrors.ErrNotTutor)
		})
	})

	t.Run("invalid params", func(t *testing.T) {
		withTx(t, func(s *LessonService, tutor models.User) {
			tests := []struct {
				name   string
				modify func(p *Params)
				field  string
			}{
				{"no subject", func(p *Params) { p.Subject = "" }, "subject"},
				{"short description", func(p *Params) { p.Description = "Short" }, "description"},
				{"free lesson", func(p *Params) { p.Price = decimal.Zero }, "price"},
				{"too expensive", func(p *Params) { p.Price = decimal.NewFromInt(10001) }, "price"},
				{"sub cent price", func(p *Params) { p.Price = decimal.RequireFromString("10.999") }, "price"},
				{"bad date", func(p *Params) { p.StartDate = "01.11.2026" }, "start_date"},
				{"ends before start", func(p *Params) { p.EndDate = "2026-10-01" }, "end_date"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					p := testParams()
					tt.modify(&p)

					_, err := s.Create(t.Context(), tutor, p)

					var verr *apperrors.ValidationError
					require.ErrorAs(t, err, &verr)
					require.Contains(t, verr.Fields, tt.field)
				})
			}
		})
	})

	t.Run("update and delete by owner", func(t *testing.T) {
		withTx(t, func(s *LessonService, tutor models.User) {
			created, err := s.Create(t.Context(), tutor, testParams())
			require.NoError(t, err)

			p := testParams()
			p.Price = decimal.NewFromInt(60)
			updated, err := s.Update(t.Context(), tutor.ID, created.ID, p)
			require.NoError(t, err)
			require.True(t, updated.Price.Equal(decimal.NewFromInt(60)))

			_, err = s.Update(t.Context(), uuid.New(), created.ID, p)
			require.ErrorIs(t, err, apperrors.ErrLessonNotFound)
			require.ErrorIs(t, s.Delete(t.Context(), uuid.New(), created.ID), apperrors.ErrLessonNotFound)

			require.NoError(t, s.Delete(t.Context(), tutor.ID, created.ID))

			active, err := s.List(t.Context(), tutor.ID)
			require.NoError(t, err)
			require.Empty(t, active)

			withdrawn, err := s.Get(t.Context(), created.ID)
			require.NoError(t, err)
			require.False(t, withdrawn.Active)
		})
	})
}
