package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"campaignd/pkg/migrations"
	"campaignd/pkg/models"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("campaignd_test"),
		postgres.WithUsername("campaignd"),
		postgres.WithPassword("campaignd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunPostgres(db.DB, "../../migrations/postgres"))
	// Applying again is a no-op.
	require.NoError(t, migrations.RunPostgres(db.DB, "../../migrations/postgres"))
	return db
}

func TestPostgresRepository_Container(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, found, err := repo.ExpectedTotal(ctx, "camp-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Save(ctx, models.NewMessage("m1", "hi", "+55", "camp-1", 3, base)))
	require.NoError(t, repo.Save(ctx, models.NewMessage("m2", "hi", "+55", "camp-1", 4, base.Add(time.Second))))
	require.NoError(t, repo.Save(ctx, models.NewMessage("m2", "hi", "+55", "camp-1", 4, base.Add(2*time.Second))))
	require.NoError(t, repo.Save(ctx, models.NewMessage("x1", "hi", "+55", "camp-2", 1, base)))

	total, found, err := repo.ExpectedTotal(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 4, total, "latest stored total wins")

	n, err := repo.CountByCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = db.ExecContext(ctx, `INSERT INTO messages
		(identifier, message, phone_number, campaign_id, total, created_at, updated_at)
		VALUES ('bad', 'hi', '+55', 'camp-3', 0, now(), now())`)
	assert.Error(t, err, "total must be positive")
}
