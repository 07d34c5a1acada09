package registry

import "errors"

// Every failure returned by Service wraps exactly one of these
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrInvalid      = errors.New("invalid request")
)
