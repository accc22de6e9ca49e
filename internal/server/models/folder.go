package models

import "time"

// RootKind tags the fixed top-level folders of a user's forest.
type RootKind string

const (
	RootPersonal RootKind = "personal"
	RootTrash    RootKind = "trash"
)

// Default names of the root folders. Names are cosmetic; code must look
// roots up by RootKind.
const (
	PersonalRootName = "My Cloud"
	TrashRootName    = "Trash"
)

// Folder is a node of an owner's forest. A nil ParentID marks a root, and
// only roots carry a RootKind.
type Folder struct {
	ID           string
	Name         string
	OwnerID      string
	ParentID     *string
	RootKind     *RootKind
	Starred      bool
	LastModified time.Time
}

// IsRoot reports whether f has no parent.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}

// FolderContents lists the direct children of a folder.
type FolderContents struct {
	Folders []*Folder
	Files   []*File
}

// MoveOutcome tells the caller what a move actually did. Only MoveApplied
// changes the tree.
type MoveOutcome int

const (
	// MoveApplied: the entity now lives under the destination.
	MoveApplied MoveOutcome = iota
	// MoveRejectedCycle: the destination is the folder itself or one of
	// its descendants.
	MoveRejectedCycle
	// MoveRejectedRoot: root folders never move.
	MoveRejectedRoot
	// MoveSkipped: the update matched no rows, e.g. after a concurrent change.
	MoveSkipped
)

func (o MoveOutcome) String() string {
	switch o {
	case MoveApplied:
		return "applied"
	case MoveRejectedCycle:
		return "rejected_cycle"
	case MoveRejectedRoot:
		return "rejected_root"
	case MoveSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}
