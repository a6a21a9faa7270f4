package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/dbx"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

// PostgresRepository implements item storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Item, error) {
	query := `
		SELECT id, type, date_modified, deleted, cipher, stamp, device_id
		FROM items
		WHERE user_id = $1 AND id = $2
	`
	item := &models.Item{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&item.ID, &item.Type, &item.DateModified, &item.Deleted, &item.Cipher, &item.Stamp, &item.DeviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// Upsert relies on the conditional DO UPDATE, so an older or repeated push
// leaves the row alone even when two devices race.
func (r *PostgresRepository) Upsert(ctx context.Context, item *models.Item) (bool, error) {
	query := `
		INSERT INTO items (user_id, id, type, date_modified, deleted, cipher, stamp, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, id)
		DO UPDATE SET
			type = EXCLUDED.type,
			date_modified = EXCLUDED.date_modified,
			deleted = EXCLUDED.deleted,
			cipher = EXCLUDED.cipher,
			stamp = EXCLUDED.stamp,
			device_id = EXCLUDED.device_id
			WHERE items.date_modified < EXCLUDED.date_modified
	`
	res, err := r.db.ExecContext(ctx, query,
		item.UserID, item.ID, item.Type, item.DateModified, item.Deleted, item.Cipher, item.Stamp, item.DeviceID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListSince(ctx context.Context, userID string, since int64, excludeDevice string, limit int) ([]*models.Item, error) {
	query := `
		SELECT id, type, date_modified, deleted, cipher, stamp, device_id
		FROM items
		WHERE user_id = $1 AND stamp > $2 AND device_id <> $3
		ORDER BY stamp
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since, excludeDevice, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.Item
	for rows.Next() {
		item := &models.Item{UserID: userID}
		if err := rows.Scan(
			&item.ID, &item.Type, &item.DateModified, &item.Deleted, &item.Cipher, &item.Stamp, &item.DeviceID,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, userID string, since int64, excludeDevice string) (int, error) {
	query := `
		SELECT count(*) FROM items
		WHERE user_id = $1 AND stamp > $2 AND device_id <> $3
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, since, excludeDevice).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
