package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophnotes/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const rowColumns = `id, type, note_id, date_modified, synced, deleted, conflicted, payload`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	r := &Row{}
	if err := s.Scan(&r.ID, &r.Type, &r.NoteID, &r.DateModified, &r.Synced, &r.Deleted, &r.Conflicted, &r.Payload); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) queryRows(ctx context.Context, query string, args ...any) ([]*Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item[%s]: %w", id, err)
	}
	return row, nil
}

func (r *SQLiteRepository) GetMulti(ctx context.Context, ids []string) ([]*Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return r.queryRows(ctx, `SELECT `+rowColumns+` FROM items WHERE id IN (`+in+`)`, args...)
}

func (r *SQLiteRepository) Upsert(ctx context.Context, row *Row) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (`+rowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			note_id = excluded.note_id,
			date_modified = excluded.date_modified,
			synced = excluded.synced,
			deleted = excluded.deleted,
			conflicted = excluded.conflicted,
			payload = excluded.payload
	`, row.ID, row.Type, row.NoteID, row.DateModified, row.Synced, row.Deleted, row.Conflicted, row.Payload)
	if err != nil {
		return fmt.Errorf("failed to upsert item[%s]: %w", row.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListByType(ctx context.Context, itemType string, withDeleted bool) ([]*Row, error) {
	query := `SELECT ` + rowColumns + ` FROM items WHERE type = ?`
	if !withDeleted {
		query += ` AND deleted = 0`
	}
	return r.queryRows(ctx, query+` ORDER BY date_modified DESC`, itemType)
}

func (r *SQLiteRepository) ContentByNote(ctx context.Context, noteID string) (*Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM items WHERE type = 'content' AND note_id = ? ORDER BY date_modified DESC LIMIT 1`, noteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content of note[%s]: %w", noteID, err)
	}
	return row, nil
}

func (r *SQLiteRepository) Unsynced(ctx context.Context, all bool) ([]Stamp, error) {
	query := `SELECT id, type, date_modified FROM items`
	if !all {
		query += ` WHERE synced = 0`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY date_modified`)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsynced items: %w", err)
	}
	defer rows.Close()

	var result []Stamp
	for rows.Next() {
		var s Stamp
		if err := rows.Scan(&s.ID, &s.Type, &s.DateModified); err != nil {
			return nil, fmt.Errorf("failed to scan item stamp: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item stamps: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsynced items: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, s Stamp) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET synced = 1 WHERE id = ? AND date_modified = ?`, s.ID, s.DateModified)
	if err != nil {
		return false, fmt.Errorf("failed to mark item[%s] synced: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ConflictedNoteIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_id FROM items WHERE type = 'content' AND conflicted = 1 AND deleted = 0 ORDER BY note_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicted items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note ids: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	return nil
}
