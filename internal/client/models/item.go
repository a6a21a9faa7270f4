// Package models defines the note graph items the client stores and syncs.
package models

import (
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/google/uuid"
)

// ItemType classifies an item kind.
type ItemType string

const (
	TypeNote      ItemType = "note"
	TypeNotebook  ItemType = "notebook"
	TypeTag       ItemType = "tag"
	TypeColor     ItemType = "color"
	TypeReminder  ItemType = "reminder"
	TypeContent   ItemType = "content"
	TypeMonograph ItemType = "monograph"
	TypeRelation  ItemType = "relation"
)

// SyncOrder lists item types so that referenced items are uploaded before
// the items referencing them.
var SyncOrder = []ItemType{
	TypeNotebook, TypeTag, TypeColor, TypeNote, TypeContent, TypeReminder, TypeRelation, TypeMonograph,
}

func (t ItemType) Valid() bool {
	for _, s := range SyncOrder {
		if s == t {
			return true
		}
	}
	return false
}

// Item is one node of the note graph. Type-specific fields are left empty
// for other types. Synced, Remote, Conflicted and ConflictedContent are
// device-local and are stripped by ForSync.
type Item struct {
	ID           string   `json:"id"`
	Type         ItemType `json:"type"`
	DateCreated  int64    `json:"dateCreated,omitempty"`
	DateModified int64    `json:"dateModified"`
	Deleted      bool     `json:"deleted,omitempty"`
	Synced       bool     `json:"synced,omitempty"`
	Remote       bool     `json:"remote,omitempty"`

	// note, notebook, tag, color, reminder, monograph
	Title string `json:"title,omitempty"`

	// note
	Headline   string `json:"headline,omitempty"`
	ContentID  string `json:"contentId,omitempty"`
	NotebookID string `json:"notebookId,omitempty"`
	Pinned     bool   `json:"pinned,omitempty"`
	Locked     bool   `json:"locked,omitempty"`
	Conflicted bool   `json:"conflicted,omitempty"`

	// color
	ColorCode string `json:"colorCode,omitempty"`

	// reminder
	Description string `json:"description,omitempty"`
	Date        int64  `json:"date,omitempty"`

	// content
	NoteID            string `json:"noteId,omitempty"`
	Data              string `json:"data,omitempty"`
	Format            string `json:"format,omitempty"`
	DateEdited        int64  `json:"dateEdited,omitempty"`
	ConflictedContent *Item  `json:"conflictedContent,omitempty"`
	DateResolved      int64  `json:"dateResolved,omitempty"`

	// monograph
	SelfDestruct  bool              `json:"selfDestruct,omitempty"`
	DatePublished int64             `json:"datePublished,omitempty"`
	Password      *cryptox.Envelope `json:"password,omitempty"`

	// relation
	FromType ItemType `json:"fromType,omitempty"`
	FromID   string   `json:"fromId,omitempty"`
	ToType   ItemType `json:"toType,omitempty"`
	ToID     string   `json:"toId,omitempty"`
}

// NowMillis is the wall clock in milliseconds.
func NowMillis() int64 { return time.Now().UnixMilli() }

// NewItem creates an unsynced item with a fresh id.
func NewItem(t ItemType, now int64) *Item {
	return &Item{ID: uuid.NewString(), Type: t, DateCreated: now, DateModified: now}
}

// RelationID derives the id of the relation between two items. Identical
// relations created on different devices get the same id and therefore
// collapse into one item.
func RelationID(fromType ItemType, fromID string, toType ItemType, toID string) string {
	name := string(fromType) + ":" + fromID + ">" + string(toType) + ":" + toID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// NewRelation links from -> to.
func NewRelation(fromType ItemType, fromID string, toType ItemType, toID string, now int64) *Item {
	return &Item{
		ID:           RelationID(fromType, fromID, toType, toID),
		Type:         TypeRelation,
		DateCreated:  now,
		DateModified: now,
		FromType:     fromType,
		FromID:       fromID,
		ToType:       toType,
		ToID:         toID,
	}
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	cp.ConflictedContent = it.ConflictedContent.Clone()
	if it.Password != nil {
		pw := *it.Password
		cp.Password = &pw
	}
	return &cp
}

// ForSync returns the copy that is serialized for upload.
func (it *Item) ForSync() *Item {
	if it.Deleted {
		return it.Tombstone()
	}
	cp := it.Clone()
	cp.Synced = false
	cp.Remote = false
	cp.Conflicted = false
	cp.ConflictedContent = nil
	return cp
}

// Tombstone returns the deletion marker for it: identity, type and time only.
func (it *Item) Tombstone() *Item {
	return &Item{ID: it.ID, Type: it.Type, DateModified: it.DateModified, Deleted: true, NoteID: it.NoteID}
}

// Touch marks it as modified locally at now.
func (it *Item) Touch(now int64) {
	if now <= it.DateModified {
		now = it.DateModified + 1
	}
	it.DateModified = now
	it.Synced = false
	it.Remote = false
}
