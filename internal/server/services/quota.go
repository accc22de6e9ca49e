package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/repomanager"
)

// Limits caps storage. A value of zero or less disables that limit.
type Limits struct {
	MaxUploadBytes  int64
	MaxStorageBytes int64
}

// QuotaEnforcer computes how much a user stores and gates operations that
// grow it. The check is not atomic with the write that follows, so
// concurrent uploads may overshoot the limit by their combined size.
type QuotaEnforcer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	limits      Limits
}

func NewQuotaEnforcer(db *sql.DB, rm repomanager.RepositoryManager, limits Limits) *QuotaEnforcer {
	return &QuotaEnforcer{db: db, repomanager: rm, limits: limits}
}

func (q *QuotaEnforcer) Limits() Limits {
	return q.limits
}

// UsedStorage sums the sizes of every file reachable from any of the
// owner's roots, trash included. It is computed on each call.
func (q *QuotaEnforcer) UsedStorage(ctx context.Context, ownerID string) (int64, error) {
	f, err := loadForest(ctx, q.repomanager.Folders(q.db), ownerID)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, root := range f.roots {
		ids = append(ids, folderIDs(f.subtree(root.ID))...)
	}
	return q.repomanager.Files(q.db).SumSize(ctx, ownerID, ids, "")
}

// CheckUploadSize rejects a single file larger than the upload ceiling.
func (q *QuotaEnforcer) CheckUploadSize(size int64) error {
	if q.limits.MaxUploadBytes > 0 && size > q.limits.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes over the %d byte limit", common.ErrFileTooLarge, size-q.limits.MaxUploadBytes, q.limits.MaxUploadBytes)
	}
	return nil
}

// CheckQuota fails with common.ErrQuotaExceeded when storing incoming more
// bytes would take the owner past the storage limit.
func (q *QuotaEnforcer) CheckQuota(ctx context.Context, ownerID string, incoming int64) error {
	if q.limits.MaxStorageBytes <= 0 {
		return nil
	}

	used, err := q.UsedStorage(ctx, ownerID)
	if err != nil {
		return err
	}
	if used+incoming > q.limits.MaxStorageBytes {
		left := max(q.limits.MaxStorageBytes-used, 0)
		return fmt.Errorf("%w: %d bytes left", common.ErrQuotaExceeded, left)
	}
	return nil
}
