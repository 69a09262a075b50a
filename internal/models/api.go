package models

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// VisibilityRequest is the body of PUT /api/boards/{id}/visibility.
type VisibilityRequest struct {
	IsPublic bool `json:"isPublic"`
}

// MemberRequest is the body of POST /api/boards/{id}/members.
type MemberRequest struct {
	Email string `json:"email"`
}

// PositionRequest is the body of PUT /api/boards/{id}/notes/{noteID}/position.
type PositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type AnalyzeRequest struct {
	Prompt string `json:"prompt"`
}

type AnalyzeResponse struct {
	Summary string `json:"summary"`
}

// ErrorResponse is the body of every non-2xx API response. Code is an
// AuthErrorKind for authentication failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes for failures that are not authentication errors.
const (
	CodeInvalidInput     = "invalid-input"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeMissing          = "missing"
	CodeAnalysisFailed   = "analysis-failed"
	CodeAnalysisDisabled = "analysis-disabled"
	CodeInternal         = "internal"
)
