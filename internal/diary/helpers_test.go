package diary_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"diary/internal/body"
	"diary/internal/db/dbtest"
	"diary/internal/diary"
	"diary/internal/jobs"
	"diary/internal/logger"
	"diary/internal/validation"
)

const (
	alice uint64 = 1
	bob   uint64 = 2
)

type fixture struct {
	db    *gorm.DB
	tags  *diary.TagStore
	notes *diary.NoteStore
	files *body.FileStore
	jobs  *jobs.Repo
	clock *clock
}

// clock hands out strictly increasing timestamps so ordering is deterministic.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T, inline bool) *fixture {
	t.Helper()

	gdb := dbtest.Open(t)
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tags := &diary.TagStore{DB: gdb, Validator: validation.New(100), Now: clk.Now}
	repo := &jobs.Repo{DB: gdb}

	f := &fixture{db: gdb, tags: tags, jobs: repo, clock: clk}
	f.notes = &diary.NoteStore{DB: gdb, Tags: tags, Reclaims: repo, Log: logger.Discard()}

	if !inline {
		files, err := body.NewFileStore(t.TempDir())
		require.NoError(t, err)
		f.files = files
		f.notes.Bodies = files
	}
	return f
}

func (f *fixture) mustNote(t *testing.T, owner uint64, title, text string, tags ...string) *diary.Note {
	t.Helper()
	n, err := f.notes.Create(t.Context(), owner, diary.NoteInput{Title: title, Text: text, Tags: tags})
	require.NoError(t, err)
	return n
}

// failingRemover wraps a body store and refuses to remove anything.
type failingRemover struct {
	body.Store
}

func (failingRemover) Remove(context.Context, string) error {
	return errors.New("disk unavailable")
}

func validationWithMax(n int) *validation.Validator {
	return validation.New(n)
}

// hookRemover runs onRemove before delegating, to interleave other work
// between a committed write and its body cleanup.
type hookRemover struct {
	body.Store
	onRemove func()
}

func (h hookRemover) Remove(ctx context.Context, locator string) error {
	h.onRemove()
	return h.Store.Remove(ctx, locator)
}
