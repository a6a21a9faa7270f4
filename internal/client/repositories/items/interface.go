// Package items persists encrypted note graph items in the client database.
// Only the columns the sync engine queries on are stored in the clear.
package items

import (
	"context"
)

// Row is one stored item. Payload is the item encrypted with the database key.
type Row struct {
	ID           string
	Type         string
	NoteID       string
	DateModified int64
	Synced       bool
	Deleted      bool
	Conflicted   bool
	Payload      []byte
}

// Stamp identifies one exact version of an item.
type Stamp struct {
	ID           string
	Type         string
	DateModified int64
}

type Repository interface {
	// Get returns (nil, nil) when the item is absent.
	Get(ctx context.Context, id string) (*Row, error)
	GetMulti(ctx context.Context, ids []string) ([]*Row, error)
	Upsert(ctx context.Context, row *Row) error
	ListByType(ctx context.Context, itemType string, withDeleted bool) ([]*Row, error)
	// ContentByNote returns the content row of a note or (nil, nil).
	ContentByNote(ctx context.Context, noteID string) (*Row, error)
	// Unsynced lists stamps of dirty items, or of all items when all is set.
	Unsynced(ctx context.Context, all bool) ([]Stamp, error)
	CountUnsynced(ctx context.Context) (int, error)
	// MarkSynced flips synced only if the row still carries the stamped version.
	MarkSynced(ctx context.Context, s Stamp) (bool, error)
	ConflictedNoteIDs(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}
