// Package dialect hides the differences between the postgres and sqlite
// backends that the stores care about.
package dialect

import (
	"errors"
	"slices"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err comes from a unique index rejecting a
// row, whichever driver produced it.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ForUpdate adds a row lock on backends that support SELECT ... FOR UPDATE.
// sqlite serialises writers at the database level so it needs none.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// LockOrder returns names sorted and without duplicates. Transactions that
// insert into the same unique index in this order never wait on each other
// in a cycle, which postgres would otherwise abort as a deadlock.
func LockOrder(names []string) []string {
	return slices.Compact(slices.Sorted(slices.Values(names)))
}
