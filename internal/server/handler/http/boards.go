package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/middleware"
	"github.com/atinyakov/casebook/internal/models"
)

// BoardService defines the board and note operations required by the
// BoardHandler. Every call carries the authenticated principal.
type BoardService interface {
	ListForMember(ctx context.Context, principal models.User) ([]models.Board, error)
	SearchPublic(ctx context.Context, term string, limit int) ([]models.Board, error)
	Get(ctx context.Context, principal models.User, id string) (*models.Board, error)
	Create(ctx context.Context, principal models.User, fields models.BoardFields) (*models.Board, error)
	Delete(ctx context.Context, principal models.User, id string) error
	SetVisibility(ctx context.Context, principal models.User, id string, isPublic bool) error
	AddMember(ctx context.Context, principal models.User, id, email string) error
	RemoveMember(ctx context.Context, principal models.User, id, email string) error
	CreateNote(ctx context.Context, principal models.User, boardID string, fields models.NoteFields) (*models.Note, error)
	DeleteNote(ctx context.Context, principal models.User, boardID, noteID string) error
	SetNotePosition(ctx context.Context, principal models.User, boardID, noteID string, x, y float64) error
}

// BoardHandler handles the /api/boards routes.
type BoardHandler struct {
	Boards BoardService
	Log    *zap.Logger
}

// principal returns the authenticated user or writes a 401.
func (h *BoardHandler) principal(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.Log, models.ErrUnauthorized)
	}
	return user, ok
}

// param returns the unescaped URL parameter name.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// List handles GET /api/boards.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	boards, err := h.Boards.ListForMember(r.Context(), user)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// SearchPublic handles GET /api/boards/public?q=&limit=.
func (h *BoardHandler) SearchPublic(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "limit must be a number", models.CodeInvalidInput)
			return
		}
		limit = n
	}
	boards, err := h.Boards.SearchPublic(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// Get handles GET /api/boards/{id}.
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Boards.Get(r.Context(), user, param(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Create handles POST /api/boards.
func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	var fields models.BoardFields
	if !decode(w, r, &fields) {
		return
	}
	b, err := h.Boards.Create(r.Context(), user, fields)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("board created", zap.String("board", b.ID), zap.String("owner", user.ID))
	writeJSON(w, http.StatusCreated, b)
}

// Delete handles DELETE /api/boards/{id}.
func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	id := param(r, "id")
	if err := h.Boards.Delete(r.Context(), user, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("board deleted", zap.String("board", id), zap.String("owner", user.ID))
	w.WriteHeader(http.StatusNoContent)
}

// SetVisibility handles PUT /api/boards/{id}/visibility.
func (h *BoardHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req models.VisibilityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Boards.SetVisibility(r.Context(), user, param(r, "id"), req.IsPublic); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMember handles POST /api/boards/{id}/members.
func (h *BoardHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req models.MemberRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Boards.AddMember(r.Context(), user, param(r, "id"), req.Email); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/boards/{id}/members/{email}.
func (h *BoardHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Boards.RemoveMember(r.Context(), user, param(r, "id"), param(r, "email")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote handles POST /api/boards/{id}/notes.
func (h *BoardHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	var fields models.NoteFields
	if !decode(w, r, &fields) {
		return
	}
	n, err := h.Boards.CreateNote(r.Context(), user, param(r, "id"), fields)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// DeleteNote handles DELETE /api/boards/{id}/notes/{noteID}.
func (h *BoardHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.Boards.DeleteNote(r.Context(), user, param(r, "id"), param(r, "noteID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetNotePosition handles PUT /api/boards/{id}/notes/{noteID}/position.
func (h *BoardHandler) SetNotePosition(w http.ResponseWriter, r *http.Request) {
	user, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req models.PositionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Boards.SetNotePosition(r.Context(), user, param(r, "id"), param(r, "noteID"), req.X, req.Y); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
