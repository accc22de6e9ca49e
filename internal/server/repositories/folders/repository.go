package folders

import (
	"context"

	"github.com/dmitrijs2005/mycloud/internal/server/models"
)

// Repository stores folder rows. Every method is scoped by owner: a row
// owned by someone else behaves exactly like a missing row.
type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	Get(ctx context.Context, ownerID, id string) (*models.Folder, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Folder, error)
	ListChildren(ctx context.Context, ownerID, parentID string) ([]*models.Folder, error)
	Roots(ctx context.Context, ownerID string) ([]*models.Folder, error)
	LockOwner(ctx context.Context, ownerID string) error
	Rename(ctx context.Context, ownerID, id, name string) error
	SetStarred(ctx context.Context, ownerID, id string, starred bool) error
	Move(ctx context.Context, ownerID, id, destID string) (bool, error)
	DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error)
}
