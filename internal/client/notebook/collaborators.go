// Package notebook holds the client-side application state: the signed-in
// principal, the boards they belong to, public search results, the active
// board and the pending analysis. Every mutation is persisted through the
// Store before it is reflected locally.
package notebook

import (
	"context"

	"github.com/atinyakov/casebook/internal/models"
)

// Session is the identity collaborator.
type Session interface {
	// CurrentPrincipal returns the signed-in user, or nil.
	CurrentPrincipal() *models.User
	// Subscribe registers fn to be called with the new principal (or nil)
	// whenever it changes. The returned function unregisters fn.
	Subscribe(fn func(*models.User)) (unsubscribe func())
	// SignInInteractive signs in by asking the user for credentials.
	SignInInteractive(ctx context.Context) error
	// SignInWithCredentials signs in with an e-mail and password.
	SignInWithCredentials(ctx context.Context, email, secret string) error
	// Register creates an account and signs it in.
	Register(ctx context.Context, displayName, email, secret string) error
	// SignOut ends the session.
	SignOut(ctx context.Context) error
}

// Store is the board document store collaborator. Implementations never
// expose partial writes.
type Store interface {
	// ListBoardsForMember returns every board email belongs to, with notes.
	ListBoardsForMember(ctx context.Context, email string) ([]models.Board, error)
	// SearchPublicBoards returns public boards whose title starts with term,
	// or the newest public boards when term is empty. Notes are not included.
	SearchPublicBoards(ctx context.Context, term string, limit int) ([]models.Board, error)
	// GetBoard returns one board with its notes, or nil if it does not exist.
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	// CreateBoard creates a board owned by owner.
	CreateBoard(ctx context.Context, owner models.User, fields models.BoardFields) (*models.Board, error)
	// DeleteBoard removes a board and all its notes after verifying that
	// actingUserID owns it.
	DeleteBoard(ctx context.Context, actingUserID, id string) error
	SetVisibility(ctx context.Context, id string, isPublic bool) error
	AddMember(ctx context.Context, id, email string) error
	RemoveMember(ctx context.Context, id, email string) error
	CreateNote(ctx context.Context, boardID string, fields models.NoteFields) (*models.Note, error)
	DeleteNote(ctx context.Context, boardID, noteID string) error
	SetNotePosition(ctx context.Context, boardID, noteID string, x, y float64) error
}

// Analyzer is the language-model collaborator.
type Analyzer interface {
	// Summarize returns the model's answer to prompt.
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Confirmer asks the user to confirm destructive actions.
type Confirmer interface {
	ConfirmDeleteBoard(board models.Board) bool
}
