package domain

import "errors"

var (
	ErrLockNotAcquired = errors.New("session lock held by another owner")
	ErrEmptyMessage    = errors.New("event carries no text")
)
