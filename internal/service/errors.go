package service

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrSelfChat     = errors.New("cannot open a room with yourself")
	ErrEmptyContent = errors.New("message content is empty")
)
