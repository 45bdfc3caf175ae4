package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"diary/internal/body"
	"diary/internal/db/dialect"
	domainerrors "diary/internal/errors"
	"diary/internal/jobs"
)

type titlePayload struct {
	Title string `json:"title" validate:"required,maxlen"`
}

type tagNamesPayload struct {
	Tags []string `json:"tags" validate:"dive,required,maxlen,slug"`
}

// NoteInput is the payload of a new note.
type NoteInput struct {
	Title string
	Text  string
	Tags  []string
}

// NoteUpdate carries the fields to change; nil fields are left alone. A
// non-nil Tags replaces the whole tag set.
type NoteUpdate struct {
	Title *string
	Text  *string
	Tags  *[]string
}

// NoteStore owns Note rows, their tag associations and their bodies.
type NoteStore struct {
	DB   *gorm.DB
	Tags *TagStore
	// Bodies is the external body store. When nil, bodies are kept inline.
	Bodies body.Store
	// Archive serves locators written before bodies were kept inline. It is
	// read and reclaimed, never written. Only consulted when Bodies is nil.
	Archive body.Store
	// Reclaims records body removals that must survive a failed cleanup.
	// Optional.
	Reclaims *jobs.Repo
	Log      *slog.Logger
}

// List returns the owner's notes, newest first, narrowed by the filter.
func (s *NoteStore) List(ctx context.Context, owner uint64, filter NoteFilter) ([]Note, error) {
	db := s.DB.WithContext(ctx)

	var notes []Note
	if err := db.Scopes(ownedBy("notes", owner)).
		Order("created_at desc").Order("id desc").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if err := loadTags(db, owner, notes); err != nil {
		return nil, err
	}

	notes = filter.Apply(notes)
	for i := range notes {
		if err := s.resolveText(ctx, &notes[i]); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func (s *NoteStore) Get(ctx context.Context, owner, id uint64) (*Note, error) {
	db := s.DB.WithContext(ctx)

	n, err := findNote(db, owner, id)
	if err != nil {
		return nil, err
	}
	notes := []Note{*n}
	if err := loadTags(db, owner, notes); err != nil {
		return nil, err
	}
	if err := s.resolveText(ctx, &notes[0]); err != nil {
		return nil, err
	}
	return &notes[0], nil
}

// Create checks the payload shape, then title uniqueness, then resolves the
// tag names (creating missing tags) in the order given.
func (s *NoteStore) Create(ctx context.Context, owner uint64, in NoteInput) (*Note, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Tags == nil {
		in.Tags = []string{}
	}
	if err := s.validate(&in.Title, &in.Tags); err != nil {
		return nil, err
	}

	note := Note{
		UserID:    owner,
		Title:     in.Title,
		CreatedAt: s.Tags.now(),
		Text:      in.Text,
	}
	if s.Bodies == nil {
		note.Body = in.Text
	} else {
		loc, err := s.Bodies.Write(ctx, in.Text)
		if err != nil {
			return nil, fmt.Errorf("store note body: %w", err)
		}
		note.BodyPath = loc
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&note).Error; err != nil {
			if dialect.IsUniqueViolation(err) {
				return noteConflict(note.Title)
			}
			return fmt.Errorf("insert note: %w", err)
		}
		tags, err := s.attachTags(tx, &note, in.Tags)
		if err != nil {
			return err
		}
		note.Tags = tags
		return nil
	})
	if err != nil {
		s.discardBody(ctx, note.BodyPath)
		return nil, err
	}
	return &note, nil
}

func (s *NoteStore) Update(ctx context.Context, owner, id uint64, upd NoteUpdate) (*Note, error) {
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		upd.Title = &t
	}
	if err := s.validate(upd.Title, upd.Tags); err != nil {
		return nil, err
	}

	// A changed body goes to a fresh locator so readers keep seeing the old
	// one until the row points elsewhere.
	var newPath string
	if upd.Text != nil && s.Bodies != nil {
		loc, err := s.Bodies.Write(ctx, *upd.Text)
		if err != nil {
			return nil, fmt.Errorf("store note body: %w", err)
		}
		newPath = loc
	}

	var out *Note
	var oldPath string
	var jobID uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := findNote(dialect.ForUpdate(tx), owner, id)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if upd.Title != nil && *upd.Title != n.Title {
			updates["title"] = *upd.Title
		}
		if upd.Text != nil {
			oldPath = n.BodyPath
			if s.Bodies == nil {
				n.Body, n.BodyPath = *upd.Text, ""
			} else {
				n.Body, n.BodyPath = "", newPath
			}
			updates["body"] = n.Body
			updates["body_path"] = n.BodyPath
			n.Text = *upd.Text
		} else if err := s.resolveText(ctx, n); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&Note{}).Where("id = ?", n.ID).Updates(updates).Error; err != nil {
				if dialect.IsUniqueViolation(err) {
					return noteConflict(*upd.Title)
				}
				return fmt.Errorf("update note: %w", err)
			}
		}
		if upd.Title != nil {
			n.Title = *upd.Title
		}

		if upd.Tags != nil {
			if err := tx.Where("note_id = ?", n.ID).Delete(&NoteTag{}).Error; err != nil {
				return fmt.Errorf("detach tags: %w", err)
			}
			if n.Tags, err = s.attachTags(tx, n, *upd.Tags); err != nil {
				return err
			}
		} else {
			rows := []Note{*n}
			if err := loadTags(tx, owner, rows); err != nil {
				return err
			}
			n.Tags = rows[0].Tags
		}

		if oldPath != "" && s.Reclaims != nil && s.stored() != nil {
			jobID, err = s.Reclaims.EnqueueReclaim(tx, owner, n.ID, oldPath)
			if err != nil {
				return fmt.Errorf("enqueue body reclaim: %w", err)
			}
		}
		out = n
		return nil
	})
	if err != nil {
		s.discardBody(ctx, newPath)
		return nil, err
	}

	s.reclaim(ctx, oldPath, jobID)
	return out, nil
}

// Delete removes the note and its tag links in one transaction, then reclaims
// an externally stored body. Reclaim failures are logged and left to the
// reclaim queue; the caller still sees success because the note is gone.
func (s *NoteStore) Delete(ctx context.Context, owner, id uint64) error {
	var path string
	var jobID uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := findNote(dialect.ForUpdate(tx), owner, id)
		if err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", n.ID).Delete(&NoteTag{}).Error; err != nil {
			return fmt.Errorf("detach tags: %w", err)
		}
		if err := tx.Delete(&Note{}, n.ID).Error; err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		path = n.BodyPath
		if path != "" && s.Reclaims != nil && s.stored() != nil {
			jobID, err = s.Reclaims.EnqueueReclaim(tx, owner, n.ID, path)
			if err != nil {
				return fmt.Errorf("enqueue body reclaim: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.reclaim(ctx, path, jobID)
	return nil
}

func (s *NoteStore) validate(title *string, tags *[]string) error {
	var payloads []any
	if title != nil {
		payloads = append(payloads, titlePayload{Title: *title})
	}
	if tags != nil {
		payloads = append(payloads, tagNamesPayload{Tags: *tags})
	}
	return s.Tags.Validator.Validate(payloads...)
}

// attachTags links n to the owner's tags called names, creating missing ones.
// Tags are resolved in lock order; links keep the caller's order, with
// repeated names collapsing onto their first position.
func (s *NoteStore) attachTags(tx *gorm.DB, n *Note, names []string) ([]Tag, error) {
	now := s.Tags.now()
	byName := make(map[string]Tag, len(names))
	for _, name := range dialect.LockOrder(names) {
		t, _, err := getOrCreateTag(tx, n.UserID, name, now)
		if err != nil {
			return nil, err
		}
		byName[name] = *t
	}

	tags := make([]Tag, 0, len(byName))
	links := make([]NoteTag, 0, len(byName))
	for _, name := range names {
		t, ok := byName[name]
		if !ok {
			continue
		}
		delete(byName, name)
		links = append(links, NoteTag{NoteID: n.ID, TagID: t.ID, UserID: n.UserID, Position: len(links)})
		tags = append(tags, t)
	}

	if len(links) > 0 {
		if err := tx.Create(&links).Error; err != nil {
			return nil, fmt.Errorf("link tags: %w", err)
		}
	}
	return tags, nil
}

func (s *NoteStore) resolveText(ctx context.Context, n *Note) error {
	if n.BodyPath == "" {
		n.Text = n.Body
		return nil
	}
	store := s.stored()
	if store == nil {
		return fmt.Errorf("note %d has an external body but no body store is configured", n.ID)
	}
	text, err := store.Read(ctx, n.BodyPath)
	if err != nil {
		return fmt.Errorf("read note body: %w", err)
	}
	n.Text = text
	return nil
}

// reclaim removes a body the database no longer references. It runs after the
// transaction committed and never fails the caller.
func (s *NoteStore) reclaim(ctx context.Context, path string, jobID uint64) {
	store := s.stored()
	if path == "" || store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if err := store.Remove(ctx, path); err != nil {
		s.logger().Warn("reclaim note body", "locator", path, "job_id", jobID, "error", err)
		return
	}
	if jobID != 0 {
		if err := s.Reclaims.MarkDone(ctx, jobID); err != nil {
			s.logger().Warn("mark reclaim done", "job_id", jobID, "error", err)
		}
	}
}

// stored returns the store holding existing locators.
func (s *NoteStore) stored() body.Store {
	if s.Bodies != nil {
		return s.Bodies
	}
	return s.Archive
}

// discardBody drops a body written for a write that did not commit.
func (s *NoteStore) discardBody(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.Bodies.Remove(context.WithoutCancel(ctx), path); err != nil {
		s.logger().Warn("discard orphan note body", "locator", path, "error", err)
	}
}

func (s *NoteStore) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func findNote(tx *gorm.DB, owner, id uint64) (*Note, error) {
	var n Note
	err := tx.Scopes(ownedBy("notes", owner)).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &n, nil
}

// loadTags fills Tags on each note, in association order.
func loadTags(db *gorm.DB, owner uint64, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}
	ids := make([]uint64, len(notes))
	byID := make(map[uint64]*Note, len(notes))
	for i := range notes {
		ids[i] = notes[i].ID
		byID[notes[i].ID] = &notes[i]
		notes[i].Tags = []Tag{}
	}

	var rows []struct {
		NoteID uint64
		ID     uint64
		UserID uint64
		Name   string
	}
	if err := db.Table("note_tags").
		Select("note_tags.note_id, tags.id, tags.user_id, tags.name").
		Joins("JOIN tags ON tags.id = note_tags.tag_id").
		Scopes(ownedBy("note_tags", owner)).
		Where("note_tags.note_id IN ?", ids).
		Order("note_tags.note_id").Order("note_tags.position").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("load note tags: %w", err)
	}

	for _, r := range rows {
		n := byID[r.NoteID]
		n.Tags = append(n.Tags, Tag{ID: r.ID, UserID: r.UserID, Name: r.Name})
	}
	return nil
}

func noteConflict(title string) error {
	return domainerrors.Conflictf("note with title %q already exists", title)
}
