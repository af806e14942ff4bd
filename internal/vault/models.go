// Package vault is the reference domain: a password-vault schema whose
// users own entries, entries own files and tags are attached to entries
// through an auto-created junction table.
package vault

import (
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/logical"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
)

type User struct {
	ID          int64  `db:"id,primary"`
	Login       string `db:"login"`
	DisplayName string `db:"display_name"`
	logical.Model
}

// Entry kinds.
const (
	KindLogin  = "login"
	KindNote   = "note"
	KindCard   = "card"
	KindBinary = "binary"
)

// Entry is one vault item. ParentID groups entries into folders.
type Entry struct {
	ID       int64  `db:"id,primary"`
	UserID   int64  `db:"user_id,fk:users.id,ondelete:cascade"`
	ParentID *int64 `db:"parent_id,fk:entries.id,ondelete:setnull"`
	Kind     string `db:"kind"`
	Title    string `db:"title"`
	logical.Model
}

// File is a binary attachment stored in object storage under StorageKey.
type File struct {
	ID         int64  `db:"id,primary"`
	EntryID    int64  `db:"entry_id,fk:entries.id,ondelete:cascade"`
	StorageKey string `db:"storage_key"`
	Size       int64  `db:"size"`
	logical.Model
}

type Tag struct {
	ID     int64  `db:"id,primary"`
	UserID int64  `db:"user_id,fk:users.id,ondelete:cascade"`
	Name   string `db:"name"`
	logical.Model
}

// EntryTag is the many-to-many junction of entries and tags.
type EntryTag struct {
	ID      int64 `db:"id,primary"`
	EntryID int64 `db:"entry_id,fk:entries.id,ondelete:cascade"`
	TagID   int64 `db:"tag_id,fk:tags.id,ondelete:cascade"`
}

// RefreshToken is a session credential. Tokens are never soft deleted.
type RefreshToken struct {
	ID        int64     `db:"id,primary"`
	UserID    int64     `db:"user_id,fk:users.id,ondelete:cascade"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Register adds every vault entity type to reg and validates the graph.
func Register(reg *schema.Registry) error {
	models := []struct {
		v    any
		opts []schema.Option
	}{
		{&User{}, []schema.Option{schema.UniqueTogether("login")}},
		{&Entry{}, []schema.Option{schema.UniqueTogether("user_id", "title")}},
		{&File{}, nil},
		{&Tag{}, nil},
		{&EntryTag{}, []schema.Option{schema.AutoCreated()}},
		{&RefreshToken{}, nil},
	}
	for _, m := range models {
		if _, err := reg.Register(m.v, m.opts...); err != nil {
			return err
		}
	}
	return reg.Validate()
}
