// Package services contains server-side business logic: the folder/file
// tree engine, quota accounting and account lifecycle.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/dbx"
	"github.com/dmitrijs2005/mycloud/internal/logging"
	"github.com/dmitrijs2005/mycloud/internal/server/blobstore"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TreeService owns the folder/file forest of every user. Rows live in the
// relational store and file contents in the blob store; the two are kept in
// step with the ordering below, not with a shared transaction:
//
//   - create: row, then blob; a failed blob write deletes the row again.
//   - delete: row, then blob; a failed blob delete is logged and reported,
//     the row stays deleted.
type TreeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	quota       *QuotaEnforcer
	log         logging.Logger
	now         func() time.Time
}

func NewTreeService(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store, quota *QuotaEnforcer, log logging.Logger) *TreeService {
	return &TreeService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		quota:       quota,
		log:         log.With("module", "tree"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// InitRootFolders creates the personal and trash roots of a new user in
// one transaction. It must run exactly once per user.
func (s *TreeService) InitRootFolders(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	roots := []*models.Folder{
		s.newRoot(ownerID, models.PersonalRootName, models.RootPersonal),
		s.newRoot(ownerID, models.TrashRootName, models.RootTrash),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Folders(tx)
		for _, root := range roots {
			if err := repo.Create(ctx, root); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}

func (s *TreeService) newRoot(ownerID, name string, kind models.RootKind) *models.Folder {
	return &models.Folder{
		ID:           uuid.NewString(),
		Name:         name,
		OwnerID:      ownerID,
		RootKind:     &kind,
		LastModified: s.now(),
	}
}

// Roots lists the owner's root folders in creation order.
func (s *TreeService) Roots(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return s.repomanager.Folders(s.db).Roots(ctx, ownerID)
}

// NewFolder creates a folder named name under parentID.
func (s *TreeService) NewFolder(ctx context.Context, ownerID, parentID, name string) (*models.Folder, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	folder := &models.Folder{
		ID:           uuid.NewString(),
		Name:         name,
		OwnerID:      ownerID,
		ParentID:     &parentID,
		LastModified: s.now(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Folders(tx)
		if _, err := repo.Get(ctx, ownerID, parentID); err != nil {
			return err
		}
		return repo.Create(ctx, folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// UploadFile stores a new file under parentID after the size and quota
// checks. The row is written first so the blob can be addressed by its id.
func (s *TreeService) UploadFile(ctx context.Context, ownerID, parentID, name string, content []byte) (*models.File, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	size := int64(len(content))
	if err := s.quota.CheckUploadSize(size); err != nil {
		return nil, err
	}
	if err := s.quota.CheckQuota(ctx, ownerID, size); err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Folders(s.db).Get(ctx, ownerID, parentID); err != nil {
		return nil, err
	}

	file := &models.File{
		ID:           uuid.NewString(),
		Name:         name,
		FileType:     fileTypeOf(name),
		Size:         size,
		OwnerID:      ownerID,
		ParentID:     parentID,
		LastModified: s.now(),
	}
	if err := s.storeFile(ctx, file, content); err != nil {
		return nil, err
	}
	return file, nil
}

// storeFile inserts the row and writes the blob, undoing the insert when
// the blob write fails.
func (s *TreeService) storeFile(ctx context.Context, file *models.File, content []byte) error {
	repo := s.repomanager.Files(s.db)
	if err := repo.Create(ctx, file); err != nil {
		return err
	}

	if err := s.blobs.Write(ctx, file.ID, content); err != nil {
		s.log.Warn(ctx, "blob write failed, removing file row", "file_id", file.ID, "owner_id", file.OwnerID, "error", err)
		if derr := repo.Delete(context.WithoutCancel(ctx), file.OwnerID, file.ID); derr != nil {
			s.log.Error(ctx, "file row left without content", "file_id", file.ID, "owner_id", file.OwnerID, "error", derr)
		}
		return fmt.Errorf("%w: store content: %w", common.ErrorInternal, err)
	}
	return nil
}

// GetFile returns the file row and its content.
func (s *TreeService) GetFile(ctx context.Context, ownerID, id string) (*models.File, []byte, error) {
	file, err := s.repomanager.Files(s.db).Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.readContent(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	return file, content, nil
}

// readContent loads a file's blob. A row whose blob is missing is an
// inconsistency, not a not-found.
func (s *TreeService) readContent(ctx context.Context, file *models.File) ([]byte, error) {
	content, err := s.blobs.Read(ctx, file.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "file row has no content", "file_id", file.ID, "owner_id", file.OwnerID)
		}
		return nil, fmt.Errorf("%w: read content: %w", common.ErrorInternal, err)
	}
	return content, nil
}

// FolderTree returns the folder and every descendant.
func (s *TreeService) FolderTree(ctx context.Context, ownerID, folderID string) ([]*models.Folder, error) {
	return folderTree(ctx, s.repomanager.Folders(s.db), ownerID, folderID)
}

// FolderSize sums the file sizes in the folder's subtree. A non-empty
// fileType counts only files of that category.
func (s *TreeService) FolderSize(ctx context.Context, ownerID, folderID, fileType string) (int64, error) {
	tree, err := s.FolderTree(ctx, ownerID, folderID)
	if err != nil {
		return 0, err
	}
	return s.repomanager.Files(s.db).SumSize(ctx, ownerID, folderIDs(tree), fileType)
}

// UsedStorage is the owner's total stored bytes.
func (s *TreeService) UsedStorage(ctx context.Context, ownerID string) (int64, error) {
	return s.quota.UsedStorage(ctx, ownerID)
}

// ListContents returns the direct children of parentID; files are left out
// when foldersOnly is set.
func (s *TreeService) ListContents(ctx context.Context, ownerID, parentID string, foldersOnly bool) (*models.FolderContents, error) {
	folderRepo := s.repomanager.Folders(s.db)
	if _, err := folderRepo.Get(ctx, ownerID, parentID); err != nil {
		return nil, err
	}

	subfolders, err := folderRepo.ListChildren(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	contents := &models.FolderContents{Folders: subfolders}
	if foldersOnly {
		return contents, nil
	}

	contents.Files, err = s.repomanager.Files(s.db).ListByParents(ctx, ownerID, []string{parentID})
	if err != nil {
		return nil, err
	}
	return contents, nil
}

// RenameFolder renames a non-root folder.
func (s *TreeService) RenameFolder(ctx context.Context, ownerID, id, name string) error {
	name, err := validateName(name)
	if err != nil {
		return err
	}

	repo := s.repomanager.Folders(s.db)
	folder, err := repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if folder.IsRoot() {
		return common.ErrRootFolder
	}
	return repo.Rename(ctx, ownerID, id, name)
}

// RenameFile changes a file's name. The file type stays what it was at
// creation.
func (s *TreeService) RenameFile(ctx context.Context, ownerID, id, name string) error {
	name, err := validateName(name)
	if err != nil {
		return err
	}
	return s.repomanager.Files(s.db).Rename(ctx, ownerID, id, name)
}

func (s *TreeService) SetFolderStarred(ctx context.Context, ownerID, id string, starred bool) error {
	return s.repomanager.Folders(s.db).SetStarred(ctx, ownerID, id, starred)
}

func (s *TreeService) SetFileStarred(ctx context.Context, ownerID, id string, starred bool) error {
	return s.repomanager.Files(s.db).SetStarred(ctx, ownerID, id, starred)
}

// MoveFolder re-parents id under destID. Moving a folder into itself or a
// descendant leaves the tree untouched and reports MoveRejectedCycle. The
// owner's folders stay locked from the cycle check to the update, so two
// crossing moves cannot both pass it.
func (s *TreeService) MoveFolder(ctx context.Context, ownerID, id, destID string) (models.MoveOutcome, error) {
	outcome := models.MoveSkipped

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Folders(tx)
		if err := repo.LockOwner(ctx, ownerID); err != nil {
			return err
		}

		f, err := loadForest(ctx, repo, ownerID)
		if err != nil {
			return err
		}
		folder, ok := f.byID[id]
		if !ok {
			return common.ErrorNotFound
		}
		if _, ok := f.byID[destID]; !ok {
			return common.ErrorNotFound
		}
		if folder.IsRoot() {
			outcome = models.MoveRejectedRoot
			return nil
		}
		if contains(f.subtree(id), destID) {
			outcome = models.MoveRejectedCycle
			return nil
		}

		moved, err := repo.Move(ctx, ownerID, id, destID)
		if err != nil {
			return err
		}
		if moved {
			outcome = models.MoveApplied
		}
		return nil
	})
	if err != nil {
		return models.MoveSkipped, err
	}

	if outcome != models.MoveApplied {
		s.log.Info(ctx, "folder move not applied", "folder_id", id, "dest_id", destID, "owner_id", ownerID, "outcome", outcome.String())
	}
	return outcome, nil
}

// MoveFile re-parents a file under destID.
func (s *TreeService) MoveFile(ctx context.Context, ownerID, id, destID string) (models.MoveOutcome, error) {
	if _, err := s.repomanager.Files(s.db).Get(ctx, ownerID, id); err != nil {
		return models.MoveSkipped, err
	}
	if _, err := s.repomanager.Folders(s.db).Get(ctx, ownerID, destID); err != nil {
		return models.MoveSkipped, err
	}

	moved, err := s.repomanager.Files(s.db).Move(ctx, ownerID, id, destID)
	if err != nil {
		return models.MoveSkipped, err
	}
	if !moved {
		return models.MoveSkipped, nil
	}
	return models.MoveApplied, nil
}

// DeleteFile removes the row, then the blob. If the blob cannot be removed
// the row is already gone and the failure is reported as internal.
func (s *TreeService) DeleteFile(ctx context.Context, ownerID, id string) error {
	if err := s.repomanager.Files(s.db).Delete(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.deleteBlob(ctx, ownerID, id); err != nil {
		return fmt.Errorf("%w: delete content: %w", common.ErrorInternal, err)
	}
	return nil
}

// deleteBlob removes a blob whose row is already deleted. A blob that is
// already absent counts as removed.
func (s *TreeService) deleteBlob(ctx context.Context, ownerID, id string) error {
	err := s.blobs.Delete(context.WithoutCancel(ctx), id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound):
		s.log.Warn(ctx, "deleted file had no content", "file_id", id, "owner_id", ownerID)
		return nil
	default:
		s.log.Error(ctx, "blob left behind after row delete", "file_id", id, "owner_id", ownerID, "error", err)
		return err
	}
}

// DeleteFolder deletes every file in the folder's subtree and then its
// folders. With preserveParent the folder itself is kept, which is how a
// root (trash in particular) gets emptied; roots cannot be deleted
// otherwise.
func (s *TreeService) DeleteFolder(ctx context.Context, ownerID, id string, preserveParent bool) error {
	folder, err := s.repomanager.Folders(s.db).Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if folder.IsRoot() && !preserveParent {
		return common.ErrRootFolder
	}
	return s.deleteSubtree(ctx, ownerID, id, preserveParent)
}

// DeleteForest removes every root of the owner with everything under it.
func (s *TreeService) DeleteForest(ctx context.Context, ownerID string) error {
	roots, err := s.Roots(ctx, ownerID)
	if err != nil {
		return err
	}

	var orphaned []error
	for _, root := range roots {
		err := s.deleteSubtree(ctx, ownerID, root.ID, false)
		if errors.Is(err, common.ErrOrphanedBlobs) {
			orphaned = append(orphaned, err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return errors.Join(orphaned...)
}

func (s *TreeService) deleteSubtree(ctx context.Context, ownerID, id string, preserveParent bool) error {
	var files []string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		folderRepo := s.repomanager.Folders(tx)
		if err := folderRepo.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		tree, err := folderTree(ctx, folderRepo, ownerID, id)
		if err != nil {
			return err
		}

		fileRepo := s.repomanager.Files(tx)
		list, err := fileRepo.ListByParents(ctx, ownerID, folderIDs(tree))
		if err != nil {
			return err
		}
		files = fileIDs(list)
		if _, err := fileRepo.DeleteMany(ctx, ownerID, files); err != nil {
			return err
		}

		if preserveParent {
			tree = tree[1:]
		}
		_, err = folderRepo.DeleteMany(ctx, ownerID, folderIDs(tree))
		return err
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, fileID := range files {
		if err := s.deleteBlob(ctx, ownerID, fileID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{common.ErrOrphanedBlobs}, errs...)...)
	}
	return nil
}

// DuplicateFile copies a file and its content next to the original. The
// copy counts against the quota like an upload.
func (s *TreeService) DuplicateFile(ctx context.Context, ownerID, id string) (*models.File, error) {
	src, err := s.repomanager.Files(s.db).Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.quota.CheckQuota(ctx, ownerID, src.Size); err != nil {
		return nil, err
	}

	content, err := s.readContent(ctx, src)
	if err != nil {
		return nil, err
	}

	dup := *src
	dup.ID = uuid.NewString()
	dup.Starred = false
	dup.LastModified = s.now()
	if err := s.storeFile(ctx, &dup, content); err != nil {
		return nil, err
	}
	return &dup, nil
}
