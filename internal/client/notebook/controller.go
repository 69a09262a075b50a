package notebook

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/client/canvas"
	"github.com/atinyakov/casebook/internal/models"
)

var (
	ErrNotSignedIn         = errors.New("not signed in")
	ErrNoActiveBoard       = errors.New("no active board")
	ErrUnknownBoard        = errors.New("board is not loaded")
	ErrNotOwner            = errors.New("only the board owner may do this")
	ErrNotMember           = errors.New("not a member of this board")
	ErrDeclined            = errors.New("declined")
	ErrNoNotes             = errors.New("no notes to analyze")
	ErrAnalysisUnavailable = errors.New("analysis is not configured")
	// ErrStale is returned when the session changed while a store call was in
	// flight; the result of that call is discarded.
	ErrStale = errors.New("session changed during request")
)

// DefaultCanvas is the canvas size used until the caller reports one.
var DefaultCanvas = canvas.Size{Width: 1280, Height: 720}

// Option configures a Controller.
type Option func(*Controller)

// WithAnalyzer enables Analyze.
func WithAnalyzer(a Analyzer) Option { return func(c *Controller) { c.analyzer = a } }

// WithConfirmer sets the confirmation step used before deleting a board.
func WithConfirmer(cf Confirmer) Option { return func(c *Controller) { c.confirm = cf } }

// WithLogger sets the logger for store and session failures.
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

// WithCanvas sets the initial canvas size.
func WithCanvas(s canvas.Size) Option { return func(c *Controller) { c.canvas = s } }

// WithRand sets the random source used to place new notes.
func WithRand(r *rand.Rand) Option { return func(c *Controller) { c.rnd = r } }

// Controller is the single source of truth for the client's view of boards.
//
// Note lists are stored once per board id; MyBoards and ActiveBoard both read
// from that map so the two views cannot diverge.
type Controller struct {
	session  Session
	store    Store
	analyzer Analyzer
	confirm  Confirmer
	log      *zap.Logger

	mu          sync.Mutex
	baseCtx     context.Context
	unsubscribe func()
	canvas      canvas.Size
	rnd         *rand.Rand

	// epoch changes whenever the principal changes. Completions that captured
	// an older epoch are dropped.
	epoch     uint64
	principal *models.User
	boards    []models.Board
	public    []models.Board
	notes     map[string][]models.Note
	active    *models.Board
	analysis  string
}

// New builds a controller over the given collaborators.
func New(session Session, store Store, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		store:   store,
		log:     zap.NewNop(),
		canvas:  DefaultCanvas,
		notes:   make(map[string][]models.Note),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Start subscribes to principal changes and adopts the current principal.
// ctx bounds the board loads triggered by sign-in transitions.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	unsubscribe := c.session.Subscribe(func(u *models.User) {
		c.principalChanged(c.context(), u)
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.principalChanged(ctx, c.session.CurrentPrincipal())
}

// Close unregisters the session subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}

func samePrincipal(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Email == b.Email
}

// principalChanged resets all state on sign-out or identity change and loads
// the new principal's boards.
func (c *Controller) principalChanged(ctx context.Context, u *models.User) {
	c.mu.Lock()
	if samePrincipal(c.principal, u) {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.resetLocked()
	if u != nil {
		p := *u
		c.principal = &p
	}
	c.mu.Unlock()

	if u == nil {
		c.log.Info("signed out, board state cleared")
		return
	}
	c.log.Info("principal changed", zap.String("user", u.ID))
	_ = c.LoadMyBoards(ctx, *u)
}

func (c *Controller) resetLocked() {
	c.principal = nil
	c.boards = nil
	c.public = nil
	c.notes = make(map[string][]models.Note)
	c.active = nil
	c.analysis = ""
}

// requirePrincipal returns the principal and the epoch it belongs to.
func (c *Controller) requirePrincipal() (models.User, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return models.User{}, 0, ErrNotSignedIn
	}
	return *c.principal, c.epoch, nil
}

// failed logs a store or session failure and returns err unchanged.
func (c *Controller) failed(op string, err error, fields ...zap.Field) error {
	c.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return err
}

// staleLocked reports whether a completion captured under epoch must be
// dropped.
func (c *Controller) staleLocked(op string, epoch uint64) bool {
	if c.epoch == epoch {
		return false
	}
	c.log.Warn("dropping stale completion", zap.String("op", op))
	return true
}

// SignInInteractive delegates to the session.
func (c *Controller) SignInInteractive(ctx context.Context) error {
	if err := c.session.SignInInteractive(ctx); err != nil {
		return c.failed("sign in", err)
	}
	c.principalChanged(ctx, c.session.CurrentPrincipal())
	return nil
}

// SignInWithCredentials delegates to the session.
func (c *Controller) SignInWithCredentials(ctx context.Context, email, secret string) error {
	if err := c.session.SignInWithCredentials(ctx, email, secret); err != nil {
		return c.failed("sign in", err, zap.String("email", email))
	}
	c.principalChanged(ctx, c.session.CurrentPrincipal())
	return nil
}

// Register delegates to the session. The display name is required.
func (c *Controller) Register(ctx context.Context, displayName, email, secret string) error {
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("display name: %w", models.ErrInvalidInput)
	}
	if err := c.session.Register(ctx, strings.TrimSpace(displayName), email, secret); err != nil {
		return c.failed("register", err, zap.String("email", email))
	}
	c.principalChanged(ctx, c.session.CurrentPrincipal())
	return nil
}

// SignOut ends the session and clears every board list.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.session.SignOut(ctx); err != nil {
		return c.failed("sign out", err)
	}
	c.principalChanged(ctx, nil)
	return nil
}

// LoadMyBoards replaces the board list with every board principal belongs to.
func (c *Controller) LoadMyBoards(ctx context.Context, principal models.User) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	boards, err := c.store.ListBoardsForMember(ctx, principal.Email)
	if err != nil {
		return c.failed("load boards", err, zap.String("email", principal.Email))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("load boards", epoch) || !samePrincipal(c.principal, &principal) {
		return ErrStale
	}
	c.boards = make([]models.Board, 0, len(boards))
	for _, b := range boards {
		c.notes[b.ID] = append([]models.Note{}, b.Notes...)
		c.boards = append(c.boards, header(b))
	}
	return nil
}

// header strips notes from b; notes live in c.notes.
func header(b models.Board) models.Board {
	b = b.Clone()
	b.Notes = nil
	return b
}

// CreateBoard creates a board owned by the principal.
func (c *Controller) CreateBoard(ctx context.Context, title, author string, isPublic bool) (*models.Board, error) {
	p, epoch, err := c.requirePrincipal()
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title: %w", models.ErrInvalidInput)
	}

	b, err := c.store.CreateBoard(ctx, p, models.BoardFields{
		Title:      title,
		AuthorName: strings.TrimSpace(author),
		IsPublic:   isPublic,
	})
	if err != nil {
		return nil, c.failed("create board", err, zap.String("title", title))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("create board", epoch) {
		return nil, ErrStale
	}
	c.boards = append(c.boards, header(*b))
	c.notes[b.ID] = []models.Note{}
	out := c.viewLocked(header(*b))
	return &out, nil
}

// lookupLocked finds a loaded board by id in my boards, the active board or
// the public results.
func (c *Controller) lookupLocked(id string) (models.Board, bool) {
	for _, b := range c.boards {
		if b.ID == id {
			return b, true
		}
	}
	if c.active != nil && c.active.ID == id {
		return *c.active, true
	}
	for _, b := range c.public {
		if b.ID == id {
			return b, true
		}
	}
	return models.Board{}, false
}

// ownedBoard returns the board if the principal owns it. Permission failures
// are decided here, before any store call.
func (c *Controller) ownedBoard(id string) (models.User, models.Board, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return models.User{}, models.Board{}, 0, ErrNotSignedIn
	}
	b, ok := c.lookupLocked(id)
	if !ok {
		return models.User{}, models.Board{}, 0, ErrUnknownBoard
	}
	if !b.IsOwner(c.principal.ID) {
		c.log.Warn("owner-only action rejected", zap.String("board", id), zap.String("user", c.principal.ID))
		return models.User{}, models.Board{}, 0, ErrNotOwner
	}
	return *c.principal, b.Clone(), c.epoch, nil
}

// patchLocked applies fn to every loaded copy of board id.
func (c *Controller) patchLocked(id string, fn func(*models.Board)) {
	for i := range c.boards {
		if c.boards[i].ID == id {
			fn(&c.boards[i])
		}
	}
	for i := range c.public {
		if c.public[i].ID == id {
			fn(&c.public[i])
		}
	}
	if c.active != nil && c.active.ID == id {
		fn(c.active)
	}
}

// DeleteBoard deletes a board the principal owns after confirmation.
func (c *Controller) DeleteBoard(ctx context.Context, id string) error {
	p, b, epoch, err := c.ownedBoard(id)
	if err != nil {
		return err
	}
	if c.confirm == nil || !c.confirm.ConfirmDeleteBoard(b) {
		return ErrDeclined
	}

	if err := c.store.DeleteBoard(ctx, p.ID, id); err != nil {
		return c.failed("delete board", err, zap.String("board", id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("delete board", epoch) {
		return ErrStale
	}
	c.boards = without(c.boards, id)
	c.public = without(c.public, id)
	delete(c.notes, id)
	if c.active != nil && c.active.ID == id {
		c.active = nil
		c.analysis = ""
	}
	return nil
}

func without(boards []models.Board, id string) []models.Board {
	out := boards[:0:0]
	for _, b := range boards {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

// UpdateVisibility publishes or unpublishes a board the principal owns.
func (c *Controller) UpdateVisibility(ctx context.Context, id string, isPublic bool) error {
	_, _, epoch, err := c.ownedBoard(id)
	if err != nil {
		return err
	}
	if err := c.store.SetVisibility(ctx, id, isPublic); err != nil {
		return c.failed("set visibility", err, zap.String("board", id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("set visibility", epoch) {
		return ErrStale
	}
	c.patchLocked(id, func(b *models.Board) { b.IsPublic = isPublic })
	return nil
}

// InviteMember adds email to a board the principal owns.
func (c *Controller) InviteMember(ctx context.Context, boardID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("email %q: %w", email, models.ErrInvalidInput)
	}
	_, b, epoch, err := c.ownedBoard(boardID)
	if err != nil {
		return err
	}
	if b.HasMember(email) {
		return nil
	}
	if err := c.store.AddMember(ctx, boardID, email); err != nil {
		return c.failed("invite member", err, zap.String("board", boardID), zap.String("email", email))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("invite member", epoch) {
		return ErrStale
	}
	c.patchLocked(boardID, func(b *models.Board) {
		if !b.HasMember(email) {
			b.MemberEmails = append(b.MemberEmails, email)
		}
	})
	return nil
}

// RemoveMember removes email from a board the principal owns. The owner's own
// address cannot be removed.
func (c *Controller) RemoveMember(ctx context.Context, boardID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, b, epoch, err := c.ownedBoard(boardID)
	if err != nil {
		return err
	}
	if email == b.OwnerEmail {
		return fmt.Errorf("cannot remove the owner: %w", models.ErrInvalidInput)
	}
	if !b.HasMember(email) {
		return nil
	}
	if err := c.store.RemoveMember(ctx, boardID, email); err != nil {
		return c.failed("remove member", err, zap.String("board", boardID), zap.String("email", email))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("remove member", epoch) {
		return ErrStale
	}
	c.patchLocked(boardID, func(b *models.Board) {
		kept := b.MemberEmails[:0:0]
		for _, m := range b.MemberEmails {
			if m != email {
				kept = append(kept, m)
			}
		}
		b.MemberEmails = kept
	})
	return nil
}

// SearchPublicBoards fills the public results list. Results never carry
// notes.
func (c *Controller) SearchPublicBoards(ctx context.Context, term string) error {
	_, epoch, err := c.requirePrincipal()
	if err != nil {
		return err
	}
	term = strings.TrimSpace(term)
	boards, err := c.store.SearchPublicBoards(ctx, term, models.PublicSearchLimit)
	if err != nil {
		return c.failed("search public boards", err, zap.String("term", term))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("search public boards", epoch) {
		return ErrStale
	}
	c.public = make([]models.Board, 0, len(boards))
	for _, b := range boards {
		c.public = append(c.public, header(b))
	}
	return nil
}

// OpenBoard loads a board with its notes and makes it active.
func (c *Controller) OpenBoard(ctx context.Context, id string) error {
	_, epoch, err := c.requirePrincipal()
	if err != nil {
		return err
	}
	b, err := c.store.GetBoard(ctx, id)
	if err != nil {
		return c.failed("open board", err, zap.String("board", id))
	}
	if b == nil {
		return c.failed("open board", models.ErrNotFound, zap.String("board", id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("open board", epoch) {
		return ErrStale
	}
	h := header(*b)
	c.active = &h
	c.notes[b.ID] = append([]models.Note{}, b.Notes...)
	c.analysis = ""
	for i := range c.boards {
		if c.boards[i].ID == b.ID {
			c.boards[i] = header(*b)
		}
	}
	return nil
}

// CloseBoard clears the active board and any pending analysis.
func (c *Controller) CloseBoard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.analysis = ""
}

// activeForWrite returns the active board if the principal may edit its notes.
func (c *Controller) activeForWrite() (models.Board, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return models.Board{}, 0, ErrNotSignedIn
	}
	if c.active == nil {
		return models.Board{}, 0, ErrNoActiveBoard
	}
	if !c.active.HasMember(c.principal.Email) {
		return models.Board{}, 0, ErrNotMember
	}
	return c.active.Clone(), c.epoch, nil
}

// AddNote places a new note at a random position on the active board.
func (c *Controller) AddNote(ctx context.Context, content string) (*models.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("note content: %w", models.ErrInvalidInput)
	}
	b, epoch, err := c.activeForWrite()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	x, y, rotation := c.canvas.RandomPlacement(c.rnd)
	c.mu.Unlock()

	n, err := c.store.CreateNote(ctx, b.ID, models.NoteFields{
		Content:  content,
		X:        x,
		Y:        y,
		Rotation: rotation,
	})
	if err != nil {
		return nil, c.failed("add note", err, zap.String("board", b.ID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("add note", epoch) {
		return nil, ErrStale
	}
	if notes, ok := c.notes[b.ID]; ok {
		c.notes[b.ID] = append(notes, *n)
	}
	out := *n
	return &out, nil
}

// DeleteNote deletes a note from the active board.
func (c *Controller) DeleteNote(ctx context.Context, noteID string) error {
	b, epoch, err := c.activeForWrite()
	if err != nil {
		return err
	}
	if err := c.store.DeleteNote(ctx, b.ID, noteID); err != nil {
		return c.failed("delete note", err, zap.String("board", b.ID), zap.String("note", noteID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("delete note", epoch) {
		return ErrStale
	}
	notes, ok := c.notes[b.ID]
	if !ok {
		return nil
	}
	kept := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID != noteID {
			kept = append(kept, n)
		}
	}
	c.notes[b.ID] = kept
	return nil
}

// UpdateNotePosition persists the final position of a note on the active
// board. The position is clamped to the canvas before it is written.
func (c *Controller) UpdateNotePosition(ctx context.Context, noteID string, x, y float64) error {
	b, epoch, err := c.activeForWrite()
	if err != nil {
		return err
	}
	c.mu.Lock()
	x, y = c.canvas.ClampPosition(x, y)
	c.mu.Unlock()

	if err := c.store.SetNotePosition(ctx, b.ID, noteID, x, y); err != nil {
		return c.failed("move note", err, zap.String("board", b.ID), zap.String("note", noteID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("move note", epoch) {
		return ErrStale
	}
	notes := c.notes[b.ID]
	for i := range notes {
		if notes[i].ID == noteID {
			notes[i].X, notes[i].Y = x, y
		}
	}
	return nil
}

// Analyze asks the analyzer to summarize the active board's notes and keeps
// the answer as the pending analysis.
func (c *Controller) Analyze(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.principal == nil {
		c.mu.Unlock()
		return "", ErrNotSignedIn
	}
	if c.active == nil {
		c.mu.Unlock()
		return "", ErrNoActiveBoard
	}
	b := c.viewLocked(*c.active)
	epoch := c.epoch
	c.mu.Unlock()

	if len(b.Notes) == 0 {
		return "", ErrNoNotes
	}
	if c.analyzer == nil {
		return "", ErrAnalysisUnavailable
	}

	summary, err := c.analyzer.Summarize(ctx, BuildPrompt(b))
	if err != nil {
		if errors.Is(err, models.ErrAnalysisDisabled) {
			return "", c.failed("analyze", fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err), zap.String("board", b.ID))
		}
		if !errors.Is(err, models.ErrCommunication) {
			err = fmt.Errorf("%w: %v", models.ErrCommunication, err)
		}
		return "", c.failed("analyze", err, zap.String("board", b.ID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked("analyze", epoch) {
		return "", ErrStale
	}
	if c.active != nil && c.active.ID == b.ID {
		c.analysis = summary
	}
	return summary, nil
}

// BuildPrompt renders the instruction sent to the analyzer for a board. The
// result never exceeds models.MaxPromptBytes: notes that do not fit are cut
// at a rune boundary and the rest are left out.
func BuildPrompt(b models.Board) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "あなたは名探偵の助手です。事件「%s」の捜査メモを読み、", b.Title)
	sb.WriteString("手がかり同士の関係を整理し、有力な仮説と次に確認すべき点を簡潔にまとめてください。\n\n")
	sb.WriteString("捜査メモ:\n")
	for _, n := range b.Notes {
		line := "- " + n.Content + "\n"
		room := models.MaxPromptBytes - sb.Len()
		if len(line) > room {
			sb.WriteString(truncateUTF8(line, room))
			break
		}
		sb.WriteString(line)
	}
	return truncateUTF8(sb.String(), models.MaxPromptBytes)
}

// truncateUTF8 returns the longest prefix of s that is at most n bytes and
// ends on a rune boundary.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SetCanvas records the visible canvas size used for new notes and clamping.
func (c *Controller) SetCanvas(s canvas.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvas = s
}

// Canvas returns the current canvas size.
func (c *Controller) Canvas() canvas.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas
}

// viewLocked attaches the board's notes from the note map.
func (c *Controller) viewLocked(h models.Board) models.Board {
	out := h.Clone()
	out.Notes = append([]models.Note{}, c.notes[h.ID]...)
	return out
}

// Principal returns the signed-in user, or nil.
func (c *Controller) Principal() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}

// MyBoards returns the principal's boards with their notes.
func (c *Controller) MyBoards() []models.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Board, 0, len(c.boards))
	for _, b := range c.boards {
		out = append(out, c.viewLocked(b))
	}
	return out
}

// PublicBoards returns the last public search results. Notes are always
// empty.
func (c *Controller) PublicBoards() []models.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Board, 0, len(c.public))
	for _, b := range c.public {
		v := b.Clone()
		v.Notes = []models.Note{}
		out = append(out, v)
	}
	return out
}

// ActiveBoard returns the open board with its notes, or nil.
func (c *Controller) ActiveBoard() *models.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	v := c.viewLocked(*c.active)
	return &v
}

// Analysis returns the pending analysis for the active board.
func (c *Controller) Analysis() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysis
}
