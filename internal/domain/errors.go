package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidOptions      = errors.New("invalid options")
	ErrInvalidImage        = errors.New("invalid image")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyTerminal     = errors.New("job already terminal")
	ErrNotReady            = errors.New("artifact not ready")
	ErrExpired             = errors.New("artifact expired")
	ErrNoJobReady          = errors.New("no job ready")
	ErrStaleOwner          = errors.New("stale job owner")
	ErrAlreadySettled      = errors.New("reservation already settled")
)
