package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/atinyakov/casebook/internal/models"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestUserExists_True(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	email := "holmes@example.com"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UserExists(context.Background(), email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Errorf("expected user to exist, got false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserExists_Error(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs("x@example.com").
		WillReturnError(errors.New("query failed"))

	if _, err := repo.UserExists(context.Background(), "x@example.com"); err == nil {
		t.Errorf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_Success(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	acc := models.Account{
		User:         models.User{ID: "u1", DisplayName: "Holmes", Email: "holmes@example.com"},
		PasswordHash: []byte("hash"),
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, email, display_name, password_hash) VALUES ($1, $2, $3, $4)`)).
		WithArgs("u1", "holmes@example.com", "Holmes", []byte("hash")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.CreateUser(context.Background(), acc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.CreateUser(context.Background(), models.Account{User: models.User{ID: "u2", Email: "holmes@example.com"}})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateUser_OtherError(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(errors.New("insert failed"))

	err := repo.CreateUser(context.Background(), models.Account{})
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Errorf("expected plain error, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, display_name, password_hash, disabled, created_at FROM users WHERE email = $1`)).
		WithArgs("holmes@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "disabled", "created_at"}).
			AddRow("u1", "holmes@example.com", "Holmes", []byte("hash"), true, created))

	acc, err := repo.GetUserByEmail(context.Background(), "holmes@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID != "u1" || acc.DisplayName != "Holmes" || !acc.Disabled || string(acc.PasswordHash) != "hash" {
		t.Errorf("unexpected account: %+v", acc)
	}
	if !acc.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v", acc.CreatedAt)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "disabled", "created_at"}))

	if _, err := repo.GetUserByID(context.Background(), "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	expires := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (jti, user_id, expires_at) VALUES ($1, $2, $3)`)).
		WithArgs("jti-1", "u1", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM sessions WHERE jti = $1 AND expires_at > $2)`)).
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE jti = $1`)).
		WithArgs("jti-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := repo.SaveSession(ctx, "jti-1", "u1", expires); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	active, err := repo.SessionActive(ctx, "jti-1")
	if err != nil || !active {
		t.Fatalf("SessionActive = %v, %v", active, err)
	}
	if err := repo.RevokeSession(ctx, "jti-1"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveSession_Error(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions`)).WillReturnError(errors.New("fk violation"))
	if err := repo.SaveSession(context.Background(), "j", "u", time.Now()); err == nil {
		t.Error("expected error")
	}
}
