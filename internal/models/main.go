// Package models defines the core data structures for users, boards and notes.
package models

import "time"

const (
	// NoteWidth is the rendered width of a note on the canvas, in pixels.
	NoteWidth = 250
	// NoteHeight is the rendered height of a note on the canvas, in pixels.
	NoteHeight = 150

	// MinRotation is the smallest rotation assigned to a new note, in degrees.
	MinRotation = -10
	// MaxRotation is the largest rotation assigned to a new note, in degrees.
	MaxRotation = 9

	// PublicSearchLimit is the page size for public board search.
	PublicSearchLimit = 20

	// MaxPromptBytes is the largest analysis prompt the server accepts.
	MaxPromptBytes = 64 << 10
)

// User is the signed-in principal handed out by the session collaborator.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// DisplayName is the name shown next to the user's boards.
	DisplayName string `json:"displayName"`
	// Email is the address used for board membership.
	Email string `json:"email"`
}

// Account is the persisted form of a user, including credentials.
type Account struct {
	User
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte
	// Disabled marks an account that may no longer sign in.
	Disabled bool
	// CreatedAt is the registration time.
	CreatedAt time.Time
}

// Board is a case board: a named, optionally shared canvas of notes.
type Board struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	AuthorName   string    `json:"authorName,omitempty"`
	OwnerID      string    `json:"ownerId"`
	OwnerEmail   string    `json:"ownerEmail"`
	MemberEmails []string  `json:"memberEmails"`
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
	Notes        []Note    `json:"notes"`
}

// IsOwner reports whether the user with the given id owns the board.
func (b *Board) IsOwner(userID string) bool {
	return userID != "" && b.OwnerID == userID
}

// HasMember reports whether email is on the board's access list.
func (b *Board) HasMember(email string) bool {
	if email == "" {
		return false
	}
	for _, m := range b.MemberEmails {
		if m == email {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := b
	out.MemberEmails = append([]string(nil), b.MemberEmails...)
	out.Notes = append([]Note{}, b.Notes...)
	return out
}

// BoardFields carries the caller-supplied attributes of a new board.
type BoardFields struct {
	Title      string `json:"title"`
	AuthorName string `json:"authorName,omitempty"`
	IsPublic   bool   `json:"isPublic"`
}

// Note is a positioned, rotated text annotation on a board.
type Note struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
}

// NoteFields carries the attributes of a new note.
type NoteFields struct {
	Content  string  `json:"content"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
}
