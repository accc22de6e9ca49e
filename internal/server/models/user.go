// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Account is the profile returned to an authenticated user. Root ids are
// picked by root kind, never by position.
type Account struct {
	UserName        string
	Email           string
	PersonalRootID  string
	TrashRootID     string
	MaxUploadBytes  int64
	MaxStorageBytes int64
}
