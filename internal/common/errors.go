// Package common defines shared constants and sentinel errors used across
// the storage core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors, raised before any mutation.
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrShortPassword   = errors.New("password too short")

	// Root folders may be emptied but never moved, renamed or removed.
	ErrRootFolder = errors.New("root folder cannot be modified")

	// Conflict errors.
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")

	// Capacity errors.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrFileTooLarge  = errors.New("file too large")

	// Auth errors.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Account setup failed after the user row was created; the account has
	// no root folders and cannot be used.
	ErrRootForestBootstrap = errors.New("root folders bootstrap failed")

	// Rows were deleted but some blobs could not be removed.
	ErrOrphanedBlobs = errors.New("orphaned blobs left behind")
)
