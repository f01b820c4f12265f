package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique key is already taken
	ErrConflict = errors.New("conflict: entity already exists")

	// ErrUnknownAccount is returned when an account address has no row
	ErrUnknownAccount = errors.New("unknown account")
)
