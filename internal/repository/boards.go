package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/atinyakov/casebook/internal/models"
)

// PostgresBoardRepository stores boards and their notes in PostgreSQL.
// Membership is a TEXT[] column on boards; notes reference their board with
// ON DELETE CASCADE.
type PostgresBoardRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresBoardRepository creates a new PostgresBoardRepository using the
// provided *sql.DB.
func NewPostgresBoardRepository(db *sql.DB) *PostgresBoardRepository {
	return &PostgresBoardRepository{DB: db}
}

const boardColumns = `id, title, author_name, owner_id, owner_email, member_emails, is_public, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBoard(s scanner) (models.Board, error) {
	var b models.Board
	err := s.Scan(&b.ID, &b.Title, &b.AuthorName, &b.OwnerID, &b.OwnerEmail,
		pq.Array(&b.MemberEmails), &b.IsPublic, &b.CreatedAt)
	return b, err
}

func (r *PostgresBoardRepository) queryBoards(ctx context.Context, query string, args ...any) ([]models.Board, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		b.Notes = []models.Note{}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// attachNotes loads the notes of every board in one query.
func (r *PostgresBoardRepository) attachNotes(ctx context.Context, boards []models.Board) error {
	if len(boards) == 0 {
		return nil
	}
	ids := make([]string, len(boards))
	index := make(map[string]int, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
		index[b.ID] = i
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, board_id, content, x, y, rotation FROM notes
		WHERE board_id = ANY($1) ORDER BY created_at, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n models.Note
		var boardID string
		if err := rows.Scan(&n.ID, &boardID, &n.Content, &n.X, &n.Y, &n.Rotation); err != nil {
			return fmt.Errorf("scan note: %w", err)
		}
		if i, ok := index[boardID]; ok {
			boards[i].Notes = append(boards[i].Notes, n)
		}
	}
	return rows.Err()
}

// ListBoardsForMember returns every board whose access list contains email,
// oldest first, with notes.
//
//	ctx:   context for cancellation and deadlines
//	email: member address to look up
func (r *PostgresBoardRepository) ListBoardsForMember(ctx context.Context, email string) ([]models.Board, error) {
	boards, err := r.queryBoards(ctx, `
		SELECT `+boardColumns+` FROM boards
		WHERE $1 = ANY(member_emails) ORDER BY created_at, id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("ListBoardsForMember: %w", err)
	}
	if err := r.attachNotes(ctx, boards); err != nil {
		return nil, fmt.Errorf("ListBoardsForMember: %w", err)
	}
	return boards, nil
}

// escapeLike quotes the LIKE wildcards in s so it matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchPublicBoards returns up to limit public boards without notes. An empty
// term yields the newest boards first; otherwise boards whose title starts
// with term, ordered by title.
func (r *PostgresBoardRepository) SearchPublicBoards(ctx context.Context, term string, limit int) ([]models.Board, error) {
	var (
		boards []models.Board
		err    error
	)
	if term == "" {
		boards, err = r.queryBoards(ctx, `
			SELECT `+boardColumns+` FROM boards
			WHERE is_public ORDER BY created_at DESC, id LIMIT $1
		`, limit)
	} else {
		boards, err = r.queryBoards(ctx, `
			SELECT `+boardColumns+` FROM boards
			WHERE is_public AND title LIKE $1 ESCAPE '\' ORDER BY title, id LIMIT $2
		`, escapeLike(term)+"%", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("SearchPublicBoards: %w", err)
	}
	return boards, nil
}

// GetBoard returns one board with its notes, or models.ErrNotFound.
func (r *PostgresBoardRepository) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	b, err := scanBoard(r.DB.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBoard: %w", err)
	}
	b.Notes = []models.Note{}
	boards := []models.Board{b}
	if err := r.attachNotes(ctx, boards); err != nil {
		return nil, fmt.Errorf("GetBoard: %w", err)
	}
	return &boards[0], nil
}

// CreateBoard inserts a board owned by owner whose only member is the owner.
func (r *PostgresBoardRepository) CreateBoard(ctx context.Context, owner models.User, fields models.BoardFields) (*models.Board, error) {
	b := models.Board{
		ID:           uuid.NewString(),
		Title:        fields.Title,
		AuthorName:   fields.AuthorName,
		OwnerID:      owner.ID,
		OwnerEmail:   owner.Email,
		MemberEmails: []string{owner.Email},
		IsPublic:     fields.IsPublic,
		Notes:        []models.Note{},
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO boards (id, title, author_name, owner_id, owner_email, member_emails, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, b.ID, b.Title, b.AuthorName, b.OwnerID, b.OwnerEmail, pq.Array(b.MemberEmails), b.IsPublic).Scan(&b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateBoard: %w", err)
	}
	return &b, nil
}

// DeleteBoard removes a board and all of its notes in one transaction after
// checking that actingUserID owns it.
//
//	ctx:          context for cancellation and deadlines
//	actingUserID: user requesting the delete
//	id:           board to delete
//
// Returns models.ErrNotFound or models.ErrForbidden without changing anything.
func (r *PostgresBoardRepository) DeleteBoard(ctx context.Context, actingUserID, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	err = tx.QueryRowContext(ctx, `SELECT owner_id FROM boards WHERE id = $1 FOR UPDATE`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("board %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if ownerID != actingUserID {
		return fmt.Errorf("delete board %s: %w", id, models.ErrForbidden)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE board_id = $1`, id); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete board: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// expectOne turns a zero-row update into models.ErrNotFound.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresBoardRepository) SetVisibility(ctx context.Context, id string, isPublic bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE boards SET is_public = $2 WHERE id = $1`, id, isPublic)
	if err != nil {
		return fmt.Errorf("SetVisibility: %w", err)
	}
	return expectOne(res, "board "+id)
}

// AddMember appends email to the access list unless it is already there.
func (r *PostgresBoardRepository) AddMember(ctx context.Context, id, email string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE boards SET member_emails = CASE
			WHEN $2 = ANY(member_emails) THEN member_emails
			ELSE array_append(member_emails, $2)
		END
		WHERE id = $1
	`, id, email)
	if err != nil {
		return fmt.Errorf("AddMember: %w", err)
	}
	return expectOne(res, "board "+id)
}

// RemoveMember drops email from the access list. The owner's address is never
// removed.
func (r *PostgresBoardRepository) RemoveMember(ctx context.Context, id, email string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE boards SET member_emails = array_remove(member_emails, $2)
		WHERE id = $1 AND owner_email <> $2
	`, id, email)
	if err != nil {
		return fmt.Errorf("RemoveMember: %w", err)
	}
	return expectOne(res, "board "+id)
}

// CreateNote inserts a note on boardID.
func (r *PostgresBoardRepository) CreateNote(ctx context.Context, boardID string, fields models.NoteFields) (*models.Note, error) {
	n := models.Note{
		ID:       uuid.NewString(),
		Content:  fields.Content,
		X:        fields.X,
		Y:        fields.Y,
		Rotation: fields.Rotation,
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO notes (id, board_id, content, x, y, rotation)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, boardID, n.Content, n.X, n.Y, n.Rotation)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return nil, fmt.Errorf("board %s: %w", boardID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("CreateNote: %w", err)
	}
	return &n, nil
}

func (r *PostgresBoardRepository) DeleteNote(ctx context.Context, boardID, noteID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND board_id = $2`, noteID, boardID)
	if err != nil {
		return fmt.Errorf("DeleteNote: %w", err)
	}
	return expectOne(res, "note "+noteID)
}

func (r *PostgresBoardRepository) SetNotePosition(ctx context.Context, boardID, noteID string, x, y float64) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notes SET x = $3, y = $4 WHERE id = $1 AND board_id = $2
	`, noteID, boardID, x, y)
	if err != nil {
		return fmt.Errorf("SetNotePosition: %w", err)
	}
	return expectOne(res, "note "+noteID)
}
