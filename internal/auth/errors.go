package auth

import "net/http"

// Error is an auth failure that maps onto an HTTP status.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = &Error{Status: http.StatusUnauthorized, Code: "INVALID_EMAIL_OR_PASSWORD", Message: "Invalid email or password"}
	ErrUserExists         = &Error{Status: http.StatusUnprocessableEntity, Code: "USER_ALREADY_EXISTS", Message: "User already exists"}
	ErrInvalidEmail       = &Error{Status: http.StatusBadRequest, Code: "INVALID_EMAIL", Message: "Invalid email"}
	ErrPasswordTooShort   = &Error{Status: http.StatusBadRequest, Code: "PASSWORD_TOO_SHORT", Message: "Password too short"}
	ErrPasswordTooLong    = &Error{Status: http.StatusBadRequest, Code: "PASSWORD_TOO_LONG", Message: "Password too long"}
	ErrNameRequired       = &Error{Status: http.StatusBadRequest, Code: "NAME_REQUIRED", Message: "Name is required"}
	ErrInvalidOrigin      = &Error{Status: http.StatusForbidden, Code: "INVALID_ORIGIN", Message: "Invalid origin"}
	ErrUnauthorized       = &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
	ErrUserNotFound       = &Error{Status: http.StatusNotFound, Code: "USER_NOT_FOUND", Message: "User not found"}
	ErrInvalidRole        = &Error{Status: http.StatusBadRequest, Code: "INVALID_ROLE", Message: "Invalid role"}
)

func fieldNotAllowed(name string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "FIELD_NOT_ALLOWED",
		Message: name + " is not allowed to be set",
	}
}
