package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"campaignd/internal/constants"
	"campaignd/pkg/models"
)

const (
	insertMessageQuery = `INSERT INTO messages
		(identifier, message, phone_number, campaign_id, total, created_at, updated_at, deleted)
		VALUES (:identifier, :message, :phone_number, :campaign_id, :total, :created_at, :updated_at, :deleted)`

	selectTotalQuery = `SELECT total FROM messages
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	countByCampaignQuery = `SELECT COUNT(*) FROM messages WHERE campaign_id = $1 AND deleted = FALSE`
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, insertMessageQuery, msg)
	observeQuery(constants.MessageStorePostgres, "insert", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.Identifier, err)
	}
	return nil
}

func (r *PostgresRepository) ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error) {
	start := time.Now()
	var total int64
	err := r.db.GetContext(ctx, &total, selectTotalQuery, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		observeQuery(constants.MessageStorePostgres, "find_total", start, nil)
		return 0, false, nil
	}
	observeQuery(constants.MessageStorePostgres, "find_total", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("failed to find total for campaign %s: %w", campaignID, err)
	}
	return total, true, nil
}

func (r *PostgresRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	start := time.Now()
	var n int64
	err := r.db.GetContext(ctx, &n, countByCampaignQuery, campaignID)
	observeQuery(constants.MessageStorePostgres, "count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for campaign %s: %w", campaignID, err)
	}
	return n, nil
}
