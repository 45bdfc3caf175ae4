package diary

import (
	"gorm.io/gorm"

	domainerrors "diary/internal/errors"
)

// Rows that exist but belong to someone else are reported exactly like rows
// that do not exist.
var (
	ErrTagNotFound  = domainerrors.NotFound("no tag matches the given query")
	ErrNoteNotFound = domainerrors.NotFound("no note matches the given query")
)

// ownedBy narrows a query on table to the rows of owner. Every read and write
// in this package goes through it; owner always comes from the authenticated
// caller, never from a payload.
func ownedBy(table string, owner uint64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".user_id = ?", owner)
	}
}
