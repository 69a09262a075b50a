package remote

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/casebook/internal/models"
)

var watson = models.User{ID: "u-watson", DisplayName: "Watson", Email: "watson@example.com"}

const goodToken = "token-1"

// fakeAPI records requests and serves a minimal slice of the API.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]json.RawMessage
	authz    []string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.Method + " " + r.URL.RequestURI()
	f.requests = append(f.requests, key)
	f.authz = append(f.authz, r.Header.Get("Authorization"))
	if r.Body != nil {
		var raw json.RawMessage
		if json.NewDecoder(r.Body).Decode(&raw) == nil {
			f.bodies[key] = raw
		}
	}
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "missing session", Code: models.CodeUnauthorized})
			return
		}
		next(w, r)
	}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{bodies: map[string]json.RawMessage{}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.Unmarshal([]byte(f.body("POST /api/login")), &req)
		if req.Password != "correct horse" {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "wrong password", Code: string(models.AuthWrongSecret)})
			return
		}
		writeJSON(w, http.StatusOK, models.AuthResponse{Token: goodToken, User: watson})
	})
	r.Post("/api/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "taken", Code: string(models.AuthIdentifierInUse)})
	})
	r.Post("/api/logout", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/api/me", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, watson)
	}))
	r.Get("/api/boards", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.Board{{ID: "b1", Title: "Mine", OwnerID: watson.ID, Notes: []models.Note{{ID: "n1"}}}})
	}))
	r.Post("/api/boards", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var fields models.BoardFields
		_ = json.Unmarshal([]byte(f.body("POST /api/boards")), &fields)
		writeJSON(w, http.StatusCreated, models.Board{ID: "b-new", Title: fields.Title, OwnerID: watson.ID,
			OwnerEmail: watson.Email, MemberEmails: []string{watson.Email}, Notes: []models.Note{}})
	}))
	r.Get("/api/boards/public", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.Board{{ID: "p1", Title: "Murmurs", IsPublic: true, Notes: []models.Note{{ID: "leak"}}}})
	}))
	r.Get("/api/boards/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "b1" {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "no such board", Code: models.CodeMissing})
			return
		}
		writeJSON(w, http.StatusOK, models.Board{ID: "b1", Title: "Mine"})
	}))
	r.Delete("/api/boards/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "not the owner", Code: models.CodeForbidden})
	}))
	r.Put("/api/boards/{id}/visibility", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Post("/api/boards/{id}/members", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Delete("/api/boards/{id}/members/{email}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Post("/api/boards/{id}/notes", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var nf models.NoteFields
		_ = json.Unmarshal([]byte(f.body("POST /api/boards/b1/notes")), &nf)
		writeJSON(w, http.StatusCreated, models.Note{ID: "n-new", Content: nf.Content, X: nf.X, Y: nf.Y, Rotation: nf.Rotation})
	}))
	r.Delete("/api/boards/{id}/notes/{noteID}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Put("/api/boards/{id}/notes/{noteID}/position", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Post("/api/analyze", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req models.AnalyzeRequest
		_ = json.Unmarshal([]byte(f.body("POST /api/analyze")), &req)
		if req.Prompt == "disabled" {
			writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "analysis is not configured", Code: models.CodeAnalysisDisabled})
			return
		}
		if req.Prompt == "fail" {
			writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "upstream timeout", Code: models.CodeAnalysisFailed})
			return
		}
		writeJSON(w, http.StatusOK, models.AnalyzeResponse{Summary: "it was " + req.Prompt})
	}))

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeAPI) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.bodies[key])
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) lastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authz[len(f.authz)-1]
}

func (f *fakeAPI) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type staticPrompter struct{ email, password string }

func (p staticPrompter) Credentials() (string, string, error) { return p.email, p.password, nil }

func signedInClient(t *testing.T, opts ...Option) (*Client, *fakeAPI) {
	t.Helper()
	f, ts := newFakeAPI(t)
	c := New(ts.URL, ts.Client(), opts...)
	require.NoError(t, c.SignInWithCredentials(context.Background(), watson.Email, "correct horse"))
	return c, f
}

func TestSignIn_NotifiesAndPersists(t *testing.T) {
	sessionPath := filepath.Join(t.TempDir(), "session.json")
	f, ts := newFakeAPI(t)
	c := New(ts.URL, ts.Client(), WithSessionFile(sessionPath))

	var got []*models.User
	c.Subscribe(func(u *models.User) { got = append(got, u) })

	require.NoError(t, c.SignInWithCredentials(context.Background(), watson.Email, "correct horse"))
	require.Len(t, got, 1)
	assert.Equal(t, watson, *got[0])
	assert.Equal(t, &watson, c.CurrentPrincipal())

	data, err := os.ReadFile(sessionPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), goodToken)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, "POST /api/logout", f.last())
	require.Len(t, got, 2)
	assert.Nil(t, got[1])
	assert.Nil(t, c.CurrentPrincipal())
	_, err = os.Stat(sessionPath)
	assert.True(t, os.IsNotExist(err), "session file must be removed on sign-out")
}

func TestSignIn_WrongSecret(t *testing.T) {
	_, ts := newFakeAPI(t)
	c := New(ts.URL, ts.Client())

	err := c.SignInWithCredentials(context.Background(), watson.Email, "nope")
	assert.Equal(t, models.AuthWrongSecret, models.AuthKind(err))
	assert.Nil(t, c.CurrentPrincipal())
}

func TestSignInInteractive(t *testing.T) {
	_, ts := newFakeAPI(t)
	c := New(ts.URL, ts.Client(), WithPrompter(staticPrompter{watson.Email, "correct horse"}))
	require.NoError(t, c.SignInInteractive(context.Background()))
	assert.Equal(t, watson.ID, c.CurrentPrincipal().ID)

	bare := New(ts.URL, ts.Client())
	assert.Equal(t, models.AuthOperationNotAllowed, models.AuthKind(bare.SignInInteractive(context.Background())))
}

func TestRegister_IdentifierInUse(t *testing.T) {
	_, ts := newFakeAPI(t)
	c := New(ts.URL, ts.Client())
	err := c.Register(context.Background(), "Watson", watson.Email, "correct horse")
	assert.Equal(t, models.AuthIdentifierInUse, models.AuthKind(err))
}

func TestRegister_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	err := c.Register(context.Background(), "Watson", watson.Email, "pw")
	assert.Equal(t, models.AuthUnknown, models.AuthKind(err))
}

func TestResume(t *testing.T) {
	_, ts := newFakeAPI(t)
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	data, _ := json.Marshal(sessionFile{Token: goodToken, User: watson})
	require.NoError(t, os.WriteFile(valid, data, 0o600))
	c := New(ts.URL, ts.Client(), WithSessionFile(valid))
	require.NoError(t, c.Resume(context.Background()))
	assert.Equal(t, &watson, c.CurrentPrincipal())

	revoked := filepath.Join(dir, "revoked.json")
	data, _ = json.Marshal(sessionFile{Token: "old", User: watson})
	require.NoError(t, os.WriteFile(revoked, data, 0o600))
	c = New(ts.URL, ts.Client(), WithSessionFile(revoked))
	require.NoError(t, c.Resume(context.Background()))
	assert.Nil(t, c.CurrentPrincipal())
	_, err := os.Stat(revoked)
	assert.True(t, os.IsNotExist(err))

	c = New(ts.URL, ts.Client(), WithSessionFile(filepath.Join(dir, "missing.json")))
	require.NoError(t, c.Resume(context.Background()))
	assert.Nil(t, c.CurrentPrincipal())
}

func TestBoards(t *testing.T) {
	c, f := signedInClient(t)
	ctx := context.Background()

	boards, err := c.ListBoardsForMember(ctx, watson.Email)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Len(t, boards[0].Notes, 1)

	_, err = c.ListBoardsForMember(ctx, "someone@else.com")
	assert.ErrorIs(t, err, models.ErrForbidden)

	b, err := c.CreateBoard(ctx, watson, models.BoardFields{Title: "The Sign of Four"})
	require.NoError(t, err)
	assert.Equal(t, "The Sign of Four", b.Title)
	assert.Equal(t, "Bearer "+goodToken, f.lastAuthorization())

	pub, err := c.SearchPublicBoards(ctx, "Mur", 20)
	require.NoError(t, err)
	assert.Equal(t, "GET /api/boards/public?limit=20&q=Mur", f.last())
	require.Len(t, pub, 1)
	assert.Empty(t, pub[0].Notes)

	got, err := c.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Mine", got.Title)

	missing, err := c.GetBoard(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = c.DeleteBoard(ctx, watson.ID, "b1")
	assert.ErrorIs(t, err, models.ErrForbidden)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not the owner", apiErr.Message)
}

func TestMembersAndNotes(t *testing.T) {
	c, f := signedInClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetVisibility(ctx, "b1", true))
	assert.JSONEq(t, `{"isPublic":true}`, f.body("PUT /api/boards/b1/visibility"))

	require.NoError(t, c.AddMember(ctx, "b1", "lestrade@example.com"))
	require.NoError(t, c.RemoveMember(ctx, "b1", "lestrade@example.com"))
	assert.Equal(t, "DELETE /api/boards/b1/members/lestrade@example.com", f.last())

	n, err := c.CreateNote(ctx, "b1", models.NoteFields{Content: "tobacco ash", X: 10, Y: 20, Rotation: -4})
	require.NoError(t, err)
	assert.Equal(t, models.Note{ID: "n-new", Content: "tobacco ash", X: 10, Y: 20, Rotation: -4}, *n)

	require.NoError(t, c.SetNotePosition(ctx, "b1", "n-new", 30, 40))
	assert.JSONEq(t, `{"x":30,"y":40}`, f.body("PUT /api/boards/b1/notes/n-new/position"))

	require.NoError(t, c.DeleteNote(ctx, "b1", "n-new"))
	assert.Equal(t, "DELETE /api/boards/b1/notes/n-new", f.last())
}

func TestCreateBoard_OtherOwnerRejected(t *testing.T) {
	c, f := signedInClient(t)
	before := f.count()
	_, err := c.CreateBoard(context.Background(), models.User{ID: "someone"}, models.BoardFields{Title: "x"})
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, before, f.count())
}

func TestSummarize(t *testing.T) {
	c, _ := signedInClient(t)

	s, err := c.Summarize(context.Background(), "the butler")
	require.NoError(t, err)
	assert.Equal(t, "it was the butler", s)

	_, err = c.Summarize(context.Background(), "fail")
	assert.ErrorIs(t, err, models.ErrCommunication)

	_, err = c.Summarize(context.Background(), "disabled")
	assert.ErrorIs(t, err, models.ErrAnalysisDisabled)
	assert.NotErrorIs(t, err, models.ErrCommunication)

	offline := New("http://127.0.0.1:1", nil)
	_, err = offline.Summarize(context.Background(), "anything")
	assert.ErrorIs(t, err, models.ErrCommunication)
}

func TestNewHTTPClient(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, watson)
	}))
	defer ts.Close()

	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, caPEM, 0o600))

	hc, err := NewHTTPClient(caPath)
	require.NoError(t, err)
	resp, err := hc.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = NewHTTPClient(filepath.Join(dir, "missing.pem"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("invalid pem"), 0o600))
	_, err = NewHTTPClient(bad)
	assert.EqualError(t, err, "failed to parse CA cert")

	plain, err := NewHTTPClient("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, plain.Timeout)
}
