package models

import "time"

// File describes a stored file. Its content lives in the blob store under
// the file's ID.
type File struct {
	ID   string
	Name string
	// FileType is the category derived from the name's extension at
	// creation time; empty when the extension is not recognised.
	FileType     string
	Size         int64
	OwnerID      string
	ParentID     string
	Starred      bool
	LastModified time.Time
}
