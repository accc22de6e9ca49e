package files

import (
	"context"

	"github.com/dmitrijs2005/mycloud/internal/server/models"
)

// Repository stores file metadata rows. Like folders, every method is
// scoped by owner.
type Repository interface {
	Create(ctx context.Context, file *models.File) error
	Get(ctx context.Context, ownerID, id string) (*models.File, error)
	ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error)
	SumSize(ctx context.Context, ownerID string, parentIDs []string, fileType string) (int64, error)
	Rename(ctx context.Context, ownerID, id, name string) error
	SetStarred(ctx context.Context, ownerID, id string, starred bool) error
	Move(ctx context.Context, ownerID, id, destID string) (bool, error)
	Delete(ctx context.Context, ownerID, id string) error
	DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error)
}
