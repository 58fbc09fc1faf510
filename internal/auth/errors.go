package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrSuspended          = errors.New("auth: account suspended")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrPasswordTooWeak    = errors.New("auth: password does not meet complexity requirements")
	ErrPasswordReused     = errors.New("auth: cannot reuse a recent password")
	ErrPasswordMismatch   = errors.New("auth: password confirmation does not match")
)
