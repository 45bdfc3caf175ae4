package diary

import "time"

// Tag is a label owned by one user. (UserID, Name) is unique.
type Tag struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"index;not null"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// Note is a titled body of text owned by one user. (UserID, Title) is unique.
//
// The body lives either inline in Body or in the external body store under
// BodyPath; Text always carries the resolved content once a store returns it.
type Note struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"not null"`
	Title     string    `gorm:"not null"`
	Body      string    `gorm:"type:text;not null;default:''"`
	BodyPath  string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`

	Text string `gorm:"-"`
	Tags []Tag  `gorm:"-"`
}

// TagNames returns the names of the note's tags in association order.
func (n *Note) TagNames() []string {
	names := make([]string, len(n.Tags))
	for i, t := range n.Tags {
		names[i] = t.Name
	}
	return names
}

// NoteTag links a note to a tag of the same owner. Position keeps the order
// the caller supplied the tag names in.
type NoteTag struct {
	NoteID   uint64 `gorm:"primaryKey"`
	TagID    uint64 `gorm:"primaryKey;index"`
	UserID   uint64 `gorm:"index;not null"`
	Position int    `gorm:"not null;default:0"`
}
