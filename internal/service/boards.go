package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/atinyakov/casebook/internal/models"
)

const (
	// MaxTitleLength bounds board titles and author names, in characters.
	MaxTitleLength = 200
	// MaxNoteLength bounds note content, in characters.
	MaxNoteLength = 2000
	// MaxSearchLimit caps the page size a client may request.
	MaxSearchLimit = 100
)

// BoardRepository defines the persistence operations needed by the BoardService.
type BoardRepository interface {
	ListBoardsForMember(ctx context.Context, email string) ([]models.Board, error)
	SearchPublicBoards(ctx context.Context, term string, limit int) ([]models.Board, error)
	// GetBoard returns models.ErrNotFound for an unknown id.
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	CreateBoard(ctx context.Context, owner models.User, fields models.BoardFields) (*models.Board, error)
	// DeleteBoard verifies ownership and removes the board with its notes atomically.
	DeleteBoard(ctx context.Context, actingUserID, id string) error
	SetVisibility(ctx context.Context, id string, isPublic bool) error
	AddMember(ctx context.Context, id, email string) error
	RemoveMember(ctx context.Context, id, email string) error
	CreateNote(ctx context.Context, boardID string, fields models.NoteFields) (*models.Note, error)
	DeleteNote(ctx context.Context, boardID, noteID string) error
	SetNotePosition(ctx context.Context, boardID, noteID string, x, y float64) error
}

// BoardService enforces who may read and change a board before delegating to
// the repository. Reading needs membership or a public board; note changes
// need membership; visibility, membership and deletion need ownership.
type BoardService struct {
	// repo is the underlying persistence repository.
	repo BoardRepository
}

// NewBoardService constructs a BoardService with the provided BoardRepository.
func NewBoardService(repo BoardRepository) *BoardService {
	return &BoardService{repo: repo}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrInvalidInput)
}

// ListForMember returns the boards principal can see in their own list.
func (s *BoardService) ListForMember(ctx context.Context, principal models.User) ([]models.Board, error) {
	return s.repo.ListBoardsForMember(ctx, principal.Email)
}

// SearchPublic runs a public title search. A limit outside (0, MaxSearchLimit]
// falls back to models.PublicSearchLimit.
func (s *BoardService) SearchPublic(ctx context.Context, term string, limit int) ([]models.Board, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = models.PublicSearchLimit
	}
	boards, err := s.repo.SearchPublicBoards(ctx, strings.TrimSpace(term), limit)
	if err != nil {
		return nil, err
	}
	for i := range boards {
		boards[i].Notes = []models.Note{}
	}
	return boards, nil
}

// Get returns a board principal may read.
func (s *BoardService) Get(ctx context.Context, principal models.User, id string) (*models.Board, error) {
	b, err := s.repo.GetBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsPublic && !b.HasMember(principal.Email) {
		return nil, fmt.Errorf("read board %s: %w", id, models.ErrForbidden)
	}
	return b, nil
}

func (s *BoardService) owned(ctx context.Context, principal models.User, id string) (*models.Board, error) {
	b, err := s.repo.GetBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsOwner(principal.ID) {
		return nil, fmt.Errorf("board %s: %w", id, models.ErrForbidden)
	}
	return b, nil
}

func (s *BoardService) member(ctx context.Context, principal models.User, id string) error {
	b, err := s.repo.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	if !b.HasMember(principal.Email) {
		return fmt.Errorf("board %s: %w", id, models.ErrForbidden)
	}
	return nil
}

// Create validates fields and stores a board owned by principal.
func (s *BoardService) Create(ctx context.Context, principal models.User, fields models.BoardFields) (*models.Board, error) {
	fields.Title = strings.TrimSpace(fields.Title)
	fields.AuthorName = strings.TrimSpace(fields.AuthorName)
	if fields.Title == "" {
		return nil, invalid("title is required")
	}
	if utf8.RuneCountInString(fields.Title) > MaxTitleLength || utf8.RuneCountInString(fields.AuthorName) > MaxTitleLength {
		return nil, invalid("title or author longer than %d characters", MaxTitleLength)
	}
	return s.repo.CreateBoard(ctx, principal, fields)
}

func (s *BoardService) Delete(ctx context.Context, principal models.User, id string) error {
	return s.repo.DeleteBoard(ctx, principal.ID, id)
}

func (s *BoardService) SetVisibility(ctx context.Context, principal models.User, id string, isPublic bool) error {
	if _, err := s.owned(ctx, principal, id); err != nil {
		return err
	}
	return s.repo.SetVisibility(ctx, id, isPublic)
}

// AddMember grants email access to a board principal owns. Adding an existing
// member is a no-op.
func (s *BoardService) AddMember(ctx context.Context, principal models.User, id, email string) error {
	email, ok := normalizeEmail(email)
	if !ok {
		return invalid("email %q", email)
	}
	b, err := s.owned(ctx, principal, id)
	if err != nil {
		return err
	}
	if b.HasMember(email) {
		return nil
	}
	return s.repo.AddMember(ctx, id, email)
}

// RemoveMember revokes email's access. The owner cannot be removed.
func (s *BoardService) RemoveMember(ctx context.Context, principal models.User, id, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	b, err := s.owned(ctx, principal, id)
	if err != nil {
		return err
	}
	if email == b.OwnerEmail {
		return invalid("cannot remove the owner")
	}
	if !b.HasMember(email) {
		return nil
	}
	return s.repo.RemoveMember(ctx, id, email)
}

func validPosition(x, y float64) error {
	for _, v := range []float64{x, y} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return invalid("position (%v, %v)", x, y)
		}
	}
	return nil
}

// CreateNote validates fields and adds a note to a board principal belongs to.
func (s *BoardService) CreateNote(ctx context.Context, principal models.User, boardID string, fields models.NoteFields) (*models.Note, error) {
	fields.Content = strings.TrimSpace(fields.Content)
	if fields.Content == "" {
		return nil, invalid("note content is required")
	}
	if utf8.RuneCountInString(fields.Content) > MaxNoteLength {
		return nil, invalid("note longer than %d characters", MaxNoteLength)
	}
	if err := validPosition(fields.X, fields.Y); err != nil {
		return nil, err
	}
	if fields.Rotation < models.MinRotation || fields.Rotation > models.MaxRotation {
		return nil, invalid("rotation %d", fields.Rotation)
	}
	if err := s.member(ctx, principal, boardID); err != nil {
		return nil, err
	}
	return s.repo.CreateNote(ctx, boardID, fields)
}

func (s *BoardService) DeleteNote(ctx context.Context, principal models.User, boardID, noteID string) error {
	if err := s.member(ctx, principal, boardID); err != nil {
		return err
	}
	return s.repo.DeleteNote(ctx, boardID, noteID)
}

func (s *BoardService) SetNotePosition(ctx context.Context, principal models.User, boardID, noteID string, x, y float64) error {
	if err := validPosition(x, y); err != nil {
		return err
	}
	if err := s.member(ctx, principal, boardID); err != nil {
		return err
	}
	return s.repo.SetNotePosition(ctx, boardID, noteID, x, y)
}
