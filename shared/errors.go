package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAlreadyBlocked  = errors.New("ip address is already blocked")
	ErrNotBlocked      = errors.New("no active block for ip address")
	ErrInvalidIP       = errors.New("invalid ip address")
	ErrInvalidToken    = errors.New("invalid token")
	ErrUserNotFound    = errors.New("user not found")
	ErrLogNotFound     = errors.New("security log not found")
	ErrAlreadyResolved = errors.New("security log already resolved")
)

const (
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeIPBlocked      = "IP_BLOCKED"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodePersistence    = "PERSISTENCE_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeBadRequest     = "BAD_REQUEST"
)

type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Data       interface{}
	RetryAfter int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewAuthenticationError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Code: CodeAuthentication, Message: message, Err: err}
}

func NewAuthorizationError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Code: CodeAuthorization, Message: message, Err: err}
}

func NewIPBlockedError(ip string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Code: CodeIPBlocked, Message: "Access denied", Data: ip}
}

func NewRateLimitExceededError(message string, retryAfter int) *AppError {
	return &AppError{StatusCode: http.StatusTooManyRequests, Code: CodeRateLimited, Message: message, RetryAfter: retryAfter}
}

func NewPersistenceError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Code: CodePersistence, Message: message, Err: err}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: message, Err: err}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Code: CodeConflict, Message: message, Err: err}
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Code: CodeBadRequest, Message: message, Err: err}
}

// ToAppError maps sentinels and AppErrors onto the HTTP taxonomy. Anything
// unrecognised becomes a 500 that does not leak the cause.
func ToAppError(err error) *AppError {
	if appErr, ok := GetAppError(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, ErrAlreadyBlocked):
		return NewConflictError(err, "IP address is already blocked")
	case errors.Is(err, ErrNotBlocked):
		return NewNotFoundError(err, "No active block for IP address")
	case errors.Is(err, ErrInvalidIP):
		return NewBadRequestError(err, "Invalid IP address")
	case errors.Is(err, ErrInvalidToken):
		return NewAuthenticationError(err, "Invalid or expired token")
	case errors.Is(err, ErrUserNotFound):
		return NewAuthenticationError(err, "User not found or inactive")
	case errors.Is(err, ErrLogNotFound):
		return NewNotFoundError(err, "Security log not found")
	case errors.Is(err, ErrAlreadyResolved):
		return NewConflictError(err, "Security log already resolved")
	}

	return &AppError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "Internal Server Error", Err: err}
}
