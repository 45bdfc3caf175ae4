package diary_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diary/internal/diary"
	domainerrors "diary/internal/errors"
)

func TestTagStore_SameNameAcrossOwners(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	a, err := f.tags.Create(ctx, alice, "x")
	require.NoError(t, err)
	b, err := f.tags.Create(ctx, bob, "x")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = f.tags.Create(ctx, alice, "x")
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestTagStore_NamesAreCaseSensitive(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.tags.Create(t.Context(), alice, "work")
	require.NoError(t, err)
	_, err = f.tags.Create(t.Context(), alice, "Work")
	assert.NoError(t, err)
}

func TestTagStore_CreateValidation(t *testing.T) {
	f := newFixture(t, true)
	f.tags.Validator = validationWithMax(5)

	for _, name := range []string{"", "with space", "dot.ted", "toolong"} {
		_, err := f.tags.Create(t.Context(), alice, name)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, name)
	}
}

func TestTagStore_GetIsOwnerScoped(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	tag, err := f.tags.Create(ctx, alice, "private")
	require.NoError(t, err)

	got, err := f.tags.Get(ctx, alice, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Name)

	_, errOther := f.tags.Get(ctx, bob, tag.ID)
	_, errMissing := f.tags.Get(ctx, bob, tag.ID+1000)
	assert.ErrorIs(t, errOther, domainerrors.ErrNotFound)
	assert.Equal(t, errMissing, errOther)
}

func TestTagStore_ListOrderAndFilter(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	for _, name := range []string{"zeta", "Alpha", "beta", "alphabet"} {
		_, err := f.tags.Create(ctx, alice, name)
		require.NoError(t, err)
	}
	_, err := f.tags.Create(ctx, bob, "alpha-bob")
	require.NoError(t, err)

	all, err := f.tags.List(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "alphabet", "beta", "zeta"}, names(all))

	filtered, err := f.tags.List(ctx, alice, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "alphabet"}, names(filtered))

	none, err := f.tags.List(ctx, 99, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTagStore_GetOrCreate(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	first, created, err := f.tags.GetOrCreate(ctx, alice, "x")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.tags.GetOrCreate(ctx, alice, "x")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = f.tags.GetOrCreate(ctx, alice, "not a slug")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestTagStore_GetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	const workers = 8
	ids := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag, _, err := f.tags.GetOrCreate(ctx, alice, "x")
			if assert.NoError(t, err) {
				ids[i] = tag.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var count int64
	require.NoError(t, f.db.Model(&diary.Tag{}).Where("user_id = ? AND name = ?", alice, "x").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTagStore_Update(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	a, err := f.tags.Create(ctx, alice, "a")
	require.NoError(t, err)
	_, err = f.tags.Create(ctx, alice, "b")
	require.NoError(t, err)

	renamed, err := f.tags.Update(ctx, alice, a.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", renamed.Name)

	same, err := f.tags.Update(ctx, alice, a.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, a.ID, same.ID)

	_, err = f.tags.Update(ctx, alice, a.ID, "b")
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = f.tags.Update(ctx, bob, a.ID, "d")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = f.tags.Update(ctx, alice, a.ID, "bad name")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestTagStore_DeleteDetachesButKeepsNotes(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	n := f.mustNote(t, alice, "groceries", "milk", "home", "errands")
	home := n.Tags[0]

	require.NoError(t, f.tags.Delete(ctx, alice, home.ID))

	got, err := f.notes.Get(ctx, alice, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"errands"}, got.TagNames())

	var links int64
	require.NoError(t, f.db.Model(&diary.NoteTag{}).Where("tag_id = ?", home.ID).Count(&links).Error)
	assert.Zero(t, links)
}

func TestTagStore_DeleteIsOwnerScopedAndNotRepeatable(t *testing.T) {
	f := newFixture(t, true)
	ctx := t.Context()

	tag, err := f.tags.Create(ctx, alice, "x")
	require.NoError(t, err)

	assert.ErrorIs(t, f.tags.Delete(ctx, bob, tag.ID), domainerrors.ErrNotFound)
	require.NoError(t, f.tags.Delete(ctx, alice, tag.ID))
	assert.ErrorIs(t, f.tags.Delete(ctx, alice, tag.ID), domainerrors.ErrNotFound)
}

func names(tags []diary.Tag) []string {
	out := make([]string, len(tags))
	for i, tg := range tags {
		out[i] = tg.Name
	}
	return out
}
