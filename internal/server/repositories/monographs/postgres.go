package monographs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/dbx"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, m *models.Monograph) error {
	query := `
		INSERT INTO monographs (id, user_id, self_destruct, date_published)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			self_destruct = EXCLUDED.self_destruct,
			date_published = EXCLUDED.date_published
			WHERE monographs.user_id = EXCLUDED.user_id
	`
	res, err := r.db.ExecContext(ctx, query, m.ID, m.UserID, m.SelfDestruct, m.DatePublished)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("monograph %s: %w", m.ID, common.ErrorAlreadyExists)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Monograph, error) {
	query := `
		SELECT id, user_id, self_destruct, date_published
		FROM monographs
		WHERE id = $1
	`
	m := &models.Monograph{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.UserID, &m.SelfDestruct, &m.DatePublished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM monographs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
