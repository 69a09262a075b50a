// Package storage is the local-only board store: every board lives in a single
// JSON file that is read on startup and rewritten wholesale on each mutation.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/models"
)

// DefaultFile is the data file used when no path is configured.
const DefaultFile = "casebook.json"

// LocalStore keeps boards in a JSON file. It implements notebook.Store.
type LocalStore struct {
	path   string
	owner  models.User
	log    *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
	boards []models.Board
	lastID int64
}

// NewLocalStore opens the store at path. Boards created by the seed belong to
// owner. A missing or unreadable file is replaced by the seed board.
func NewLocalStore(path string, owner models.User, log *zap.Logger) (*LocalStore, error) {
	if path == "" {
		path = DefaultFile
	}
	if log == nil {
		log = zap.NewNop()
	}
	ls := &LocalStore{path: path, owner: owner, log: log, now: time.Now}
	if err := ls.Load(); err != nil {
		return nil, err
	}
	return ls, nil
}

// Load reads the data file. When the file does not exist or does not hold a
// JSON array of boards, the store falls back to the seed board and writes it.
func (ls *LocalStore) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	data, err := os.ReadFile(ls.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", ls.path, err)
	}

	var boards []models.Board
	if err == nil {
		if jerr := json.Unmarshal(data, &boards); jerr != nil || boards == nil {
			ls.log.Warn("local data unreadable, using seed board", zap.String("path", ls.path), zap.Error(jerr))
			boards = nil
		}
	}
	if boards == nil {
		boards = ls.seed()
		if err := ls.writeLocked(boards); err != nil {
			return err
		}
	}

	for i := range boards {
		ls.adopt(&boards[i])
		if id, err := strconv.ParseInt(boards[i].ID, 10, 64); err == nil && id > ls.lastID {
			ls.lastID = id
		}
		for _, n := range boards[i].Notes {
			if id, err := strconv.ParseInt(n.ID, 10, 64); err == nil && id > ls.lastID {
				ls.lastID = id
			}
		}
	}
	ls.boards = boards
	return nil
}

// adopt fills the ownership fields of boards written before sharing existed.
func (ls *LocalStore) adopt(b *models.Board) {
	if b.OwnerID == "" {
		b.OwnerID = ls.owner.ID
		b.OwnerEmail = ls.owner.Email
	}
	if !b.HasMember(b.OwnerEmail) {
		b.MemberEmails = append(b.MemberEmails, b.OwnerEmail)
	}
	if b.Notes == nil {
		b.Notes = []models.Note{}
	}
}

func (ls *LocalStore) seed() []models.Board {
	id := ls.nextID()
	return []models.Board{{
		ID:           id,
		Title:        "サンプル事件",
		AuthorName:   ls.owner.DisplayName,
		OwnerID:      ls.owner.ID,
		OwnerEmail:   ls.owner.Email,
		MemberEmails: []string{ls.owner.Email},
		CreatedAt:    ls.now().UTC(),
		Notes: []models.Note{
			{ID: ls.nextID(), Content: "事件のタイムラインを整理する。", X: 100, Y: 150, Rotation: -5},
			{ID: ls.nextID(), Content: "容疑者Xのアリバイを確認。", X: 400, Y: 80, Rotation: 3},
		},
	}}
}

// nextID derives an id from the current Unix-millisecond time, bumped past the
// last id handed out so ids stay unique within a millisecond.
func (ls *LocalStore) nextID() string {
	id := ls.now().UnixMilli()
	if id <= ls.lastID {
		id = ls.lastID + 1
	}
	ls.lastID = id
	return strconv.FormatInt(id, 10)
}

// writeLocked replaces the data file with boards. The file is written to a
// sibling temp file and renamed into place.
func (ls *LocalStore) writeLocked(boards []models.Board) error {
	data, err := json.MarshalIndent(boards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode boards: %w", err)
	}
	dir := filepath.Dir(ls.path)
	tmp, err := os.CreateTemp(dir, ".casebook-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), ls.path); err != nil {
		return fmt.Errorf("replace %s: %w", ls.path, err)
	}
	return nil
}

// mutate applies fn to a deep copy of the boards and commits the copy only
// after it has been written to disk.
func (ls *LocalStore) mutate(fn func(boards []models.Board) ([]models.Board, error)) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	working := make([]models.Board, len(ls.boards))
	for i, b := range ls.boards {
		working[i] = b.Clone()
	}
	lastID := ls.lastID
	next, err := fn(working)
	if err == nil {
		err = ls.writeLocked(next)
	}
	if err != nil {
		ls.lastID = lastID
		return err
	}
	ls.boards = next
	return nil
}

func find(boards []models.Board, id string) (int, error) {
	for i := range boards {
		if boards[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("board %s: %w", id, models.ErrNotFound)
}

// ListBoardsForMember returns every board email belongs to, with notes.
func (ls *LocalStore) ListBoardsForMember(_ context.Context, email string) ([]models.Board, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	var out []models.Board
	for _, b := range ls.boards {
		if b.HasMember(email) {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

// SearchPublicBoards returns up to limit public boards. An empty term yields
// the newest boards first; otherwise titles starting with term, by title.
func (ls *LocalStore) SearchPublicBoards(_ context.Context, term string, limit int) ([]models.Board, error) {
	if limit <= 0 {
		limit = models.PublicSearchLimit
	}
	ls.mu.Lock()
	var out []models.Board
	for _, b := range ls.boards {
		if !b.IsPublic || !strings.HasPrefix(b.Title, term) {
			continue
		}
		h := b.Clone()
		h.Notes = []models.Note{}
		out = append(out, h)
	}
	ls.mu.Unlock()

	if term == "" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetBoard returns the board with its notes, or nil if there is none.
func (ls *LocalStore) GetBoard(_ context.Context, id string) (*models.Board, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	i, err := find(ls.boards, id)
	if err != nil {
		return nil, nil
	}
	b := ls.boards[i].Clone()
	return &b, nil
}

// CreateBoard appends a board owned by owner.
func (ls *LocalStore) CreateBoard(_ context.Context, owner models.User, fields models.BoardFields) (*models.Board, error) {
	var created models.Board
	err := ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		created = models.Board{
			ID:           ls.nextID(),
			Title:        fields.Title,
			AuthorName:   fields.AuthorName,
			OwnerID:      owner.ID,
			OwnerEmail:   owner.Email,
			MemberEmails: []string{owner.Email},
			IsPublic:     fields.IsPublic,
			CreatedAt:    ls.now().UTC(),
			Notes:        []models.Note{},
		}
		return append(boards, created), nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteBoard removes a board and its notes if actingUserID owns it.
func (ls *LocalStore) DeleteBoard(_ context.Context, actingUserID, id string) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, id)
		if err != nil {
			return nil, err
		}
		if !boards[i].IsOwner(actingUserID) {
			return nil, fmt.Errorf("delete board %s: %w", id, models.ErrForbidden)
		}
		return append(boards[:i], boards[i+1:]...), nil
	})
}

// SetVisibility publishes or unpublishes a board.
func (ls *LocalStore) SetVisibility(_ context.Context, id string, isPublic bool) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, id)
		if err != nil {
			return nil, err
		}
		boards[i].IsPublic = isPublic
		return boards, nil
	})
}

// AddMember adds email to the board's access list.
func (ls *LocalStore) AddMember(_ context.Context, id, email string) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, id)
		if err != nil {
			return nil, err
		}
		if !boards[i].HasMember(email) {
			boards[i].MemberEmails = append(boards[i].MemberEmails, email)
		}
		return boards, nil
	})
}

// RemoveMember removes email from the board's access list. The owner stays.
func (ls *LocalStore) RemoveMember(_ context.Context, id, email string) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, id)
		if err != nil {
			return nil, err
		}
		if email == boards[i].OwnerEmail {
			return nil, fmt.Errorf("remove owner: %w", models.ErrInvalidInput)
		}
		kept := boards[i].MemberEmails[:0]
		for _, m := range boards[i].MemberEmails {
			if m != email {
				kept = append(kept, m)
			}
		}
		boards[i].MemberEmails = kept
		return boards, nil
	})
}

// CreateNote appends a note to a board.
func (ls *LocalStore) CreateNote(_ context.Context, boardID string, fields models.NoteFields) (*models.Note, error) {
	var created models.Note
	err := ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, boardID)
		if err != nil {
			return nil, err
		}
		created = models.Note{
			ID:       ls.nextID(),
			Content:  fields.Content,
			X:        fields.X,
			Y:        fields.Y,
			Rotation: fields.Rotation,
		}
		boards[i].Notes = append(boards[i].Notes, created)
		return boards, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteNote removes a note from a board.
func (ls *LocalStore) DeleteNote(_ context.Context, boardID, noteID string) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, boardID)
		if err != nil {
			return nil, err
		}
		notes := boards[i].Notes
		for j := range notes {
			if notes[j].ID == noteID {
				boards[i].Notes = append(notes[:j], notes[j+1:]...)
				return boards, nil
			}
		}
		return nil, fmt.Errorf("note %s: %w", noteID, models.ErrNotFound)
	})
}

// SetNotePosition moves a note.
func (ls *LocalStore) SetNotePosition(_ context.Context, boardID, noteID string, x, y float64) error {
	return ls.mutate(func(boards []models.Board) ([]models.Board, error) {
		i, err := find(boards, boardID)
		if err != nil {
			return nil, err
		}
		for j := range boards[i].Notes {
			if boards[i].Notes[j].ID == noteID {
				boards[i].Notes[j].X = x
				boards[i].Notes[j].Y = y
				return boards, nil
			}
		}
		return nil, fmt.Errorf("note %s: %w", noteID, models.ErrNotFound)
	})
}
