package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/adapter/repo/postgres"
	"github.com/hostpulse/hostpulse/internal/domain"
)

func TestRegionRepo_ByID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      domain.RegionID
		setup   func(pgxmock.PgxPoolIface)
		want    domain.Region
		wantErr error
	}{
		{
			name: "found",
			id:   2,
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT region_id, name FROM region WHERE region_id = \$1`).
					WithArgs(int64(2)).
					WillReturnRows(pgxmock.NewRows([]string{"region_id", "name"}).AddRow(int64(2), "eu-west"))
			},
			want: domain.Region{ID: 2, Name: "eu-west"},
		},
		{
			name: "unknown id is invalid input",
			id:   9,
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT region_id, name FROM region WHERE region_id = \$1`).
					WithArgs(int64(9)).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()
			tt.setup(m)

			repo := postgres.NewRegionRepo(m)
			got, err := repo.ByID(context.Background(), tt.id)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestRegionRepo_All(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	m.ExpectQuery(`SELECT region_id, name FROM region ORDER BY region_id`).
		WillReturnRows(pgxmock.NewRows([]string{"region_id", "name"}).
			AddRow(int64(1), "us-east").
			AddRow(int64(2), "eu-west"))

	repo := postgres.NewRegionRepo(m)
	got, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Region{{ID: 1, Name: "us-east"}, {ID: 2, Name: "eu-west"}}, got)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRegionRepo_Upsert(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	m.ExpectExec(`INSERT INTO region`).
		WithArgs(int64(3), "ap-south").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := postgres.NewRegionRepo(m)
	require.NoError(t, repo.Upsert(context.Background(), domain.Region{ID: 3, Name: "ap-south"}))
	require.NoError(t, m.ExpectationsWereMet())
}
