package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for translation into transport statuses
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindRateLimited
)

// AppError is an error whose message is safe to show to the client
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// ErrConflict is returned by repositories on unique constraint violations.
// Services translate it into a validation message.
var ErrConflict = errors.New("conflict")

// ErrNotAuthenticated is the single answer for missing, unknown and expired sessions
var ErrNotAuthenticated = &AppError{Kind: KindUnauthorized, Message: "Not authenticated"}

// ErrInvalidCredentials is used for every failed login
var ErrInvalidCredentials = &AppError{Kind: KindUnauthorized, Message: "Invalid email or password"}

func ErrValidation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ErrNotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

// ErrRateLimited is returned once a client exceeds its request budget
var ErrRateLimited = &AppError{Kind: KindRateLimited, Message: "Too many requests, please try again later"}

// KindOf returns the kind of err, KindInternal for unclassified errors
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
