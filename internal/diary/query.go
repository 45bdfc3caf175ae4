package diary

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// NoteFilter selects notes from an owner-scoped set. Both conditions must hold
// when both are set.
type NoteFilter struct {
	// TitleContains matches case-insensitively anywhere in the title.
	TitleContains string
	// TagNames matches notes carrying at least one tag with exactly one of
	// these names.
	TagNames []string
}

// Apply keeps the matching notes, preserving order.
func (f NoteFilter) Apply(notes []Note) []Note {
	if f.TitleContains == "" && len(f.TagNames) == 0 {
		return notes
	}
	caser := cases.Fold()
	out := make([]Note, 0, len(notes))
	for i := range notes {
		if f.match(caser, &notes[i]) {
			out = append(out, notes[i])
		}
	}
	return out
}

func (f NoteFilter) match(caser cases.Caser, n *Note) bool {
	if f.TitleContains != "" && !containsFold(caser, n.Title, f.TitleContains) {
		return false
	}
	if len(f.TagNames) > 0 {
		return slices.ContainsFunc(n.Tags, func(t Tag) bool {
			return slices.Contains(f.TagNames, t.Name)
		})
	}
	return true
}

// TagFilter selects tags from an owner-scoped set.
type TagFilter struct {
	// NameContains matches case-insensitively anywhere in the name.
	NameContains string
}

func (f TagFilter) Apply(tags []Tag) []Tag {
	if f.NameContains == "" {
		return tags
	}
	caser := cases.Fold()
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if containsFold(caser, t.Name, f.NameContains) {
			out = append(out, t)
		}
	}
	return out
}

func containsFold(caser cases.Caser, s, substr string) bool {
	return strings.Contains(caser.String(s), caser.String(substr))
}
