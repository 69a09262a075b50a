// Package remote talks to the casebook API server. Client implements the
// session, board store and analyzer contracts the notebook controller needs.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/models"
)

// CredentialPrompter asks the user for sign-in credentials.
type CredentialPrompter interface {
	Credentials() (email, password string, err error)
}

// Option configures a Client.
type Option func(*Client)

// WithSessionFile persists the session token at path so a restarted client
// resumes the session.
func WithSessionFile(path string) Option { return func(c *Client) { c.sessionPath = path } }

// WithPrompter enables SignInInteractive.
func WithPrompter(p CredentialPrompter) Option { return func(c *Client) { c.prompter = p } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// Client is an HTTP client for the casebook API.
type Client struct {
	baseURL     string
	http        *http.Client
	log         *zap.Logger
	sessionPath string
	prompter    CredentialPrompter

	mu        sync.Mutex
	token     string
	user      *models.User
	subs      map[int]func(*models.User)
	nextSubID int
}

// New returns a client for the server at baseURL, e.g. https://localhost:8080.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     zap.NewNop(),
		subs:    make(map[int]func(*models.User)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status onto the shared sentinel errors.
func (e *APIError) Unwrap() error {
	if e.Code == models.CodeAnalysisDisabled {
		return models.ErrAnalysisDisabled
	}
	switch e.Status {
	case http.StatusBadRequest:
		return models.ErrInvalidInput
	case http.StatusUnauthorized:
		return models.ErrUnauthorized
	case http.StatusForbidden:
		return models.ErrForbidden
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.ErrCommunication
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// not nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var er models.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Code, apiErr.Message = er.Code, er.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// authError converts a failed register or login into an AuthError.
func authError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return models.NewAuthError(models.AuthUnknown, err)
	}
	return models.NewAuthError(models.ParseAuthErrorKind(apiErr.Code), apiErr)
}

// sessionFile is the on-disk form of a signed-in session.
type sessionFile struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) saveSession(token string, u models.User) {
	if c.sessionPath == "" {
		return
	}
	data, _ := json.Marshal(sessionFile{Token: token, User: u})
	if err := os.WriteFile(c.sessionPath, data, 0o600); err != nil {
		c.log.Warn("failed to save session", zap.String("path", c.sessionPath), zap.Error(err))
	}
}

func (c *Client) clearSession() {
	if c.sessionPath == "" {
		return
	}
	if err := os.Remove(c.sessionPath); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove session", zap.String("path", c.sessionPath), zap.Error(err))
	}
}

// Resume restores a saved session and checks it with the server. A rejected
// token is discarded and the client stays signed out.
func (c *Client) Resume(ctx context.Context) error {
	if c.sessionPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil || sf.Token == "" {
		c.clearSession()
		return nil
	}

	c.mu.Lock()
	c.token = sf.Token
	c.mu.Unlock()

	var me models.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if errors.Is(err, models.ErrUnauthorized) {
			c.clearSession()
			return nil
		}
		return err
	}
	c.setPrincipal(sf.Token, &me)
	return nil
}

// setPrincipal records the session and notifies subscribers if the principal
// changed.
func (c *Client) setPrincipal(token string, u *models.User) {
	c.mu.Lock()
	changed := !sameUser(c.user, u)
	c.token = token
	if u == nil {
		c.user = nil
	} else {
		cp := *u
		c.user = &cp
	}
	subs := make([]func(*models.User), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(c.CurrentPrincipal())
	}
}

func sameUser(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CurrentPrincipal returns the signed-in user, or nil.
func (c *Client) CurrentPrincipal() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Subscribe registers fn for principal changes.
func (c *Client) Subscribe(fn func(*models.User)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SignInInteractive asks the prompter for credentials and signs in with them.
func (c *Client) SignInInteractive(ctx context.Context) error {
	if c.prompter == nil {
		return models.NewAuthError(models.AuthOperationNotAllowed, errors.New("no interactive prompt configured"))
	}
	email, password, err := c.prompter.Credentials()
	if err != nil {
		return err
	}
	return c.SignInWithCredentials(ctx, email, password)
}

// SignInWithCredentials signs in with an e-mail and password.
func (c *Client) SignInWithCredentials(ctx context.Context, email, secret string) error {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", models.LoginRequest{Email: email, Password: secret}, &resp); err != nil {
		return authError(err)
	}
	c.saveSession(resp.Token, resp.User)
	c.setPrincipal(resp.Token, &resp.User)
	return nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, displayName, email, secret string) error {
	req := models.RegisterRequest{DisplayName: displayName, Email: email, Password: secret}
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/register", req, &resp); err != nil {
		return authError(err)
	}
	c.saveSession(resp.Token, resp.User)
	c.setPrincipal(resp.Token, &resp.User)
	return nil
}

// SignOut revokes the session on the server and forgets it locally. The local
// session is cleared even when the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil); err != nil {
		c.log.Warn("logout request failed", zap.Error(err))
	}
	c.clearSession()
	c.setPrincipal("", nil)
	return nil
}

func boardPath(id string, rest ...string) string {
	p := "/api/boards/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// ListBoardsForMember returns the signed-in user's boards. The server derives
// membership from the session, so email must match the principal.
func (c *Client) ListBoardsForMember(ctx context.Context, email string) ([]models.Board, error) {
	if p := c.CurrentPrincipal(); p == nil || p.Email != email {
		return nil, fmt.Errorf("list boards for %s: %w", email, models.ErrForbidden)
	}
	var boards []models.Board
	if err := c.do(ctx, http.MethodGet, "/api/boards", nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

func (c *Client) SearchPublicBoards(ctx context.Context, term string, limit int) ([]models.Board, error) {
	q := url.Values{}
	q.Set("q", term)
	q.Set("limit", strconv.Itoa(limit))
	var boards []models.Board
	if err := c.do(ctx, http.MethodGet, "/api/boards/public?"+q.Encode(), nil, &boards); err != nil {
		return nil, err
	}
	for i := range boards {
		boards[i].Notes = []models.Note{}
	}
	return boards, nil
}

// GetBoard returns nil when the server reports the board missing.
func (c *Client) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	var b models.Board
	if err := c.do(ctx, http.MethodGet, boardPath(id), nil, &b); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CreateBoard creates a board owned by the signed-in user; owner must be that
// user.
func (c *Client) CreateBoard(ctx context.Context, owner models.User, fields models.BoardFields) (*models.Board, error) {
	if p := c.CurrentPrincipal(); p == nil || p.ID != owner.ID {
		return nil, fmt.Errorf("create board for %s: %w", owner.ID, models.ErrForbidden)
	}
	var b models.Board
	if err := c.do(ctx, http.MethodPost, "/api/boards", fields, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBoard deletes a board. The server checks ownership against the
// session; actingUserID must be the signed-in user.
func (c *Client) DeleteBoard(ctx context.Context, actingUserID, id string) error {
	if p := c.CurrentPrincipal(); p == nil || p.ID != actingUserID {
		return fmt.Errorf("delete board as %s: %w", actingUserID, models.ErrForbidden)
	}
	return c.do(ctx, http.MethodDelete, boardPath(id), nil, nil)
}

func (c *Client) SetVisibility(ctx context.Context, id string, isPublic bool) error {
	return c.do(ctx, http.MethodPut, boardPath(id, "visibility"), models.VisibilityRequest{IsPublic: isPublic}, nil)
}

func (c *Client) AddMember(ctx context.Context, id, email string) error {
	return c.do(ctx, http.MethodPost, boardPath(id, "members"), models.MemberRequest{Email: email}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, id, email string) error {
	return c.do(ctx, http.MethodDelete, boardPath(id, "members", email), nil, nil)
}

func (c *Client) CreateNote(ctx context.Context, boardID string, fields models.NoteFields) (*models.Note, error) {
	var n models.Note
	if err := c.do(ctx, http.MethodPost, boardPath(boardID, "notes"), fields, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) DeleteNote(ctx context.Context, boardID, noteID string) error {
	return c.do(ctx, http.MethodDelete, boardPath(boardID, "notes", noteID), nil, nil)
}

func (c *Client) SetNotePosition(ctx context.Context, boardID, noteID string, x, y float64) error {
	return c.do(ctx, http.MethodPut, boardPath(boardID, "notes", noteID, "position"), models.PositionRequest{X: x, Y: y}, nil)
}

// Summarize asks the server's analysis endpoint to answer prompt. A server
// without a language model yields models.ErrAnalysisDisabled; every other
// failure is reported as models.ErrCommunication.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	var resp models.AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Prompt: prompt}, &resp); err != nil {
		if errors.Is(err, models.ErrCommunication) || errors.Is(err, models.ErrAnalysisDisabled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", models.ErrCommunication, err)
	}
	return resp.Summary, nil
}
