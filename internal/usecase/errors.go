package usecase

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrTooManySessions    = errors.New("session limit reached")
	ErrUnknownPreset      = errors.New("unknown preset")
	ErrFrameDecode        = errors.New("tick frame decode")
	ErrHistoryUnavailable = errors.New("history store not configured")
)
