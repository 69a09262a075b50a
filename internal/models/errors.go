package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a board, note or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the acting user lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned for malformed or out-of-range fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when no valid session accompanies a request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCommunication is returned when the analysis service cannot be reached
	// or answers with something unusable.
	ErrCommunication = errors.New("communication failed")
	// ErrAnalysisDisabled is returned when no language model is configured.
	ErrAnalysisDisabled = errors.New("analysis is not configured")
)

// AuthErrorKind is the closed set of authentication failures.
type AuthErrorKind string

const (
	AuthInvalidIdentifier   AuthErrorKind = "invalid-identifier"
	AuthDisabledAccount     AuthErrorKind = "disabled-account"
	AuthNotFound            AuthErrorKind = "not-found"
	AuthWrongSecret         AuthErrorKind = "wrong-secret"
	AuthIdentifierInUse     AuthErrorKind = "identifier-in-use"
	AuthWeakSecret          AuthErrorKind = "weak-secret"
	AuthOperationNotAllowed AuthErrorKind = "operation-not-allowed"
	AuthUnknown             AuthErrorKind = "unknown"
)

// ParseAuthErrorKind maps a wire code onto a known kind. Unknown codes map to
// AuthUnknown.
func ParseAuthErrorKind(code string) AuthErrorKind {
	switch k := AuthErrorKind(code); k {
	case AuthInvalidIdentifier, AuthDisabledAccount, AuthNotFound, AuthWrongSecret,
		AuthIdentifierInUse, AuthWeakSecret, AuthOperationNotAllowed:
		return k
	default:
		return AuthUnknown
	}
}

// AuthError is a sign-in or registration failure of a known kind.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

// NewAuthError builds an AuthError of the given kind.
func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s", e.Kind)
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthKind extracts the kind of an authentication error. Errors that are not
// AuthErrors report AuthUnknown.
func AuthKind(err error) AuthErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return AuthUnknown
}
