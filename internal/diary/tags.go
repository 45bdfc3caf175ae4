package diary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"diary/internal/db/dialect"
	domainerrors "diary/internal/errors"
	"diary/internal/validation"
)

// getOrCreateAttempts bounds the insert/read loop when a concurrent delete
// keeps removing the row between the two statements.
const getOrCreateAttempts = 3

type tagPayload struct {
	Name string `json:"name" validate:"required,maxlen,slug"`
}

// TagStore owns Tag rows. Every method is scoped to the owner it is given.
type TagStore struct {
	DB        *gorm.DB
	Validator *validation.Validator
	Now       func() time.Time
}

func (s *TagStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// List returns the owner's tags ordered by name, optionally narrowed to names
// containing nameContains (case-insensitive).
func (s *TagStore) List(ctx context.Context, owner uint64, nameContains string) ([]Tag, error) {
	var rows []Tag
	if err := s.DB.WithContext(ctx).
		Scopes(ownedBy("tags", owner)).
		Order("name asc").Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return TagFilter{NameContains: nameContains}.Apply(rows), nil
}

func (s *TagStore) Get(ctx context.Context, owner, id uint64) (*Tag, error) {
	return findTag(s.DB.WithContext(ctx), owner, id)
}

func (s *TagStore) Create(ctx context.Context, owner uint64, name string) (*Tag, error) {
	if err := s.Validator.Validate(tagPayload{Name: name}); err != nil {
		return nil, err
	}

	t := Tag{UserID: owner, Name: name, CreatedAt: s.now()}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		if dialect.IsUniqueViolation(err) {
			return nil, tagConflict(name)
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &t, nil
}

// GetOrCreate returns the owner's tag called name, inserting it first when it
// does not exist yet. It only fails on an invalid name or a storage error.
func (s *TagStore) GetOrCreate(ctx context.Context, owner uint64, name string) (*Tag, bool, error) {
	if err := s.Validator.Validate(tagPayload{Name: name}); err != nil {
		return nil, false, err
	}
	return getOrCreateTag(s.DB.WithContext(ctx), owner, name, s.now())
}

func (s *TagStore) Update(ctx context.Context, owner, id uint64, name string) (*Tag, error) {
	if err := s.Validator.Validate(tagPayload{Name: name}); err != nil {
		return nil, err
	}

	var out *Tag
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findTag(dialect.ForUpdate(tx), owner, id)
		if err != nil {
			return err
		}
		if t.Name != name {
			if err := tx.Model(&Tag{}).Where("id = ?", t.ID).Update("name", name).Error; err != nil {
				if dialect.IsUniqueViolation(err) {
					return tagConflict(name)
				}
				return fmt.Errorf("rename tag: %w", err)
			}
			t.Name = name
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the tag and detaches it from every note. The notes stay.
func (s *TagStore) Delete(ctx context.Context, owner, id uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findTag(dialect.ForUpdate(tx), owner, id)
		if err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", t.ID).Delete(&NoteTag{}).Error; err != nil {
			return fmt.Errorf("detach tag: %w", err)
		}
		if err := tx.Delete(&Tag{}, t.ID).Error; err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
}

func findTag(tx *gorm.DB, owner, id uint64) (*Tag, error) {
	var t Tag
	err := tx.Scopes(ownedBy("tags", owner)).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

// getOrCreateTag leans on the (user_id, name) unique index: the insert is a
// no-op when the row exists, and the follow-up read returns whichever row won.
func getOrCreateTag(tx *gorm.DB, owner uint64, name string, now time.Time) (*Tag, bool, error) {
	for range getOrCreateAttempts {
		t := Tag{UserID: owner, Name: name, CreatedAt: now}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoNothing: true,
		}).Create(&t)
		if res.Error != nil {
			return nil, false, fmt.Errorf("insert tag: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return &t, true, nil
		}

		var existing Tag
		err := tx.Scopes(ownedBy("tags", owner)).Where("name = ?", name).First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("get tag: %w", err)
		}
	}
	return nil, false, fmt.Errorf("get or create tag %q: row vanished %d times", name, getOrCreateAttempts)
}

func tagConflict(name string) error {
	return domainerrors.Conflictf("tag %q already exists", name)
}
