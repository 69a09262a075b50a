package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/auth"
	"github.com/atinyakov/casebook/internal/models"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type authFunc func(ctx context.Context, token string) (*auth.Claims, error)

func (f authFunc) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	return f(ctx, token)
}

func validOnly(token string) authFunc {
	return func(_ context.Context, got string) (*auth.Claims, error) {
		if got != token {
			return nil, fmt.Errorf("%w: bad token", models.ErrUnauthorized)
		}
		c := &auth.Claims{Email: "alice@example.com", DisplayName: "Alice"}
		c.ID = "jti-1"
		c.Subject = "u-alice"
		return c, nil
	}
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	dummy := &dummyHandler{}
	h := BearerAuth(validOnly("good"), zap.NewNop())(dummy)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/boards", nil))

	if dummy.called {
		t.Error("did not expect next handler to be called without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
	var body models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Code != models.CodeUnauthorized {
		t.Errorf("unexpected body %+v (%v)", body, err)
	}
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	dummy := &dummyHandler{}
	h := BearerAuth(validOnly("good"), zap.NewNop())(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boards", nil)
	req.Header.Set("Authorization", "Bearer forged")
	h.ServeHTTP(rec, req)

	if dummy.called || rec.Code != http.StatusUnauthorized {
		t.Errorf("called=%v code=%d", dummy.called, rec.Code)
	}
}

func TestBearerAuth_WrongScheme(t *testing.T) {
	dummy := &dummyHandler{}
	h := BearerAuth(validOnly("good"), zap.NewNop())(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boards", nil)
	req.Header.Set("Authorization", "Basic good")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuth_StoreFailure(t *testing.T) {
	failing := authFunc(func(context.Context, string) (*auth.Claims, error) {
		return nil, errors.New("redis down")
	})
	h := BearerAuth(failing, zap.NewNop())(&dummyHandler{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boards", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestBearerAuth_ValidToken(t *testing.T) {
	dummy := &dummyHandler{}
	h := BearerAuth(validOnly("good"), zap.NewNop())(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boards", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Fatal("expected next handler to be called with a valid token")
	}
	user, ok := GetPrincipalFromContext(dummy.ctx)
	if !ok || user.ID != "u-alice" || user.Email != "alice@example.com" || user.DisplayName != "Alice" {
		t.Errorf("unexpected principal %+v (ok=%v)", user, ok)
	}
	if got := GetSessionIDFromContext(dummy.ctx); got != "jti-1" {
		t.Errorf("session id = %q", got)
	}
}

func TestGetPrincipalFromContext_Empty(t *testing.T) {
	if _, ok := GetPrincipalFromContext(context.Background()); ok {
		t.Error("expected no principal in empty context")
	}
	if GetSessionIDFromContext(context.Background()) != "" {
		t.Error("expected empty session id")
	}
}
