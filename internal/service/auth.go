// Package service provides the business logic behind the HTTP API:
// authentication, board authorization and validation, delegating persistence
// to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/casebook/internal/auth"
	"github.com/atinyakov/casebook/internal/models"
	"github.com/atinyakov/casebook/internal/repository"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 6

// AuthRepository defines the account persistence operations
// required by the authentication service.
type AuthRepository interface {
	// UserExists returns true if an account with the given email exists.
	UserExists(ctx context.Context, email string) (bool, error)
	// CreateUser stores a new account. A taken email yields repository.ErrDuplicate.
	CreateUser(ctx context.Context, acc models.Account) error
	// GetUserByEmail returns the account for email or models.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.Account, error)
	// GetUserByID returns the account with id or models.ErrNotFound.
	GetUserByID(ctx context.Context, id string) (*models.Account, error)
}

// SessionStore records which issued tokens are still valid. It is backed by
// PostgreSQL or Redis.
type SessionStore interface {
	SaveSession(ctx context.Context, jti, userID string, expiresAt time.Time) error
	SessionActive(ctx context.Context, jti string) (bool, error)
	RevokeSession(ctx context.Context, jti string) error
}

// Service implements authentication operations by delegating
// to an AuthRepository and a SessionStore.
type Service struct {
	// repo performs the data-layer operations.
	repo     AuthRepository
	sessions SessionStore
	tokens   *auth.Tokens

	allowRegistration bool
	hashCost          int
}

// AuthOption configures a Service.
type AuthOption func(*Service)

// WithRegistration turns self-service registration on or off. It is on by
// default.
func WithRegistration(allowed bool) AuthOption {
	return func(s *Service) { s.allowRegistration = allowed }
}

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) AuthOption {
	return func(s *Service) { s.hashCost = cost }
}

// NewAuthService constructs a new Service using the provided repository,
// session store and token signer.
func NewAuthService(repo AuthRepository, sessions SessionStore, tokens *auth.Tokens, opts ...AuthOption) *Service {
	s := &Service{
		repo:              repo,
		sessions:          sessions,
		tokens:            tokens,
		allowRegistration: true,
		hashCost:          bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// normalizeEmail trims and lowercases email and checks that it is a bare
// address.
func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return email, false
	}
	return email, true
}

// Register creates an account and signs it in.
//
// Failures are *models.AuthError values: operation-not-allowed when
// registration is off, invalid-identifier for a malformed email, weak-secret
// for a short password and identifier-in-use for a taken email.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if !s.allowRegistration {
		return nil, models.NewAuthError(models.AuthOperationNotAllowed, errors.New("registration is disabled"))
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		return nil, models.NewAuthError(models.AuthInvalidIdentifier, nil)
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return nil, models.NewAuthError(models.AuthWeakSecret, nil)
	}

	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		return nil, models.NewAuthError(models.AuthIdentifierInUse, nil)
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, models.NewAuthError(models.AuthWeakSecret, err)
	}

	acc := models.Account{
		User:         models.User{ID: uuid.NewString(), DisplayName: name, Email: email},
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, models.NewAuthError(models.AuthIdentifierInUse, nil)
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return s.startSession(ctx, acc.User)
}

// Login checks the credentials and starts a session.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email, ok := normalizeEmail(req.Email)
	if !ok {
		return nil, models.NewAuthError(models.AuthInvalidIdentifier, nil)
	}

	acc, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewAuthError(models.AuthNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if acc.Disabled {
		return nil, models.NewAuthError(models.AuthDisabledAccount, nil)
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(req.Password)); err != nil {
		return nil, models.NewAuthError(models.AuthWrongSecret, nil)
	}
	return s.startSession(ctx, acc.User)
}

func (s *Service) startSession(ctx context.Context, user models.User) (*models.AuthResponse, error) {
	token, jti, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, jti, user.ID, expiresAt); err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, User: user}, nil
}

// Authenticate returns the claims of a valid, unrevoked token whose account
// still exists and is not disabled. A disabled account also loses the
// session. Failures wrap models.ErrUnauthorized unless a store itself fails.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	active, err := s.sessions.SessionActive(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: session revoked or expired", models.ErrUnauthorized)
	}
	acc, err := s.repo.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if acc.Disabled {
		// Best effort: the account check rejects the token either way.
		_ = s.sessions.RevokeSession(ctx, claims.ID)
		return nil, fmt.Errorf("%w: account disabled", models.ErrUnauthorized)
	}
	return claims, nil
}

// Logout revokes the session named by jti.
func (s *Service) Logout(ctx context.Context, jti string) error {
	return s.sessions.RevokeSession(ctx, jti)
}
