package domain

import "errors"

var (
	ErrBotNotFound     = errors.New("bot configuration not found")
	ErrVersionNotFound = errors.New("bot configuration version not found")
)
