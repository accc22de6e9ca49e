package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/dbx"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
)

const columns = `id, name, owner_id, parent_id, root_kind, starred, last_modified`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.Folder) error {
	query :=
		`INSERT INTO folders (id, name, owner_id, parent_id, root_kind, starred, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	var rootKind any
	if f.RootKind != nil {
		rootKind = string(*f.RootKind)
	}
	var parentID any
	if f.ParentID != nil {
		parentID = *f.ParentID
	}

	_, err := r.db.ExecContext(ctx, query, f.ID, f.Name, f.OwnerID, parentID, rootKind, f.Starred, f.LastModified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	query := `SELECT ` + columns + ` FROM folders WHERE id = $1 AND owner_id = $2`

	f, err := scanFolder(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.InvalidText(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByOwner returns every folder of the owner in creation order.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	query := `SELECT ` + columns + ` FROM folders WHERE owner_id = $1 ORDER BY seq`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListChildren(ctx context.Context, ownerID, parentID string) ([]*models.Folder, error) {
	query := `SELECT ` + columns + ` FROM folders WHERE owner_id = $1 AND parent_id = $2 ORDER BY name, seq`
	return r.list(ctx, query, ownerID, parentID)
}

// Roots returns the owner's parentless folders in creation order.
func (r *PostgresRepository) Roots(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	query := `SELECT ` + columns + ` FROM folders WHERE owner_id = $1 AND parent_id IS NULL ORDER BY seq`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(s scanner) (*models.Folder, error) {
	var (
		f        models.Folder
		parentID sql.NullString
		rootKind sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &f.OwnerID, &parentID, &rootKind, &f.Starred, &f.LastModified); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	if rootKind.Valid {
		k := models.RootKind(rootKind.String)
		f.RootKind = &k
	}
	return &f, nil
}

// LockOwner takes row locks on all of the owner's folders for the rest of
// the transaction, in id order. Structural changes (move, subtree delete)
// call it first so their view of the forest cannot go stale.
func (r *PostgresRepository) LockOwner(ctx context.Context, ownerID string) error {
	query := `SELECT id FROM folders WHERE owner_id = $1 ORDER BY id FOR UPDATE`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		if dbx.InvalidText(err) {
			return nil
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Rename changes the name of a non-root folder.
func (r *PostgresRepository) Rename(ctx context.Context, ownerID, id, name string) error {
	query :=
		`UPDATE folders SET name = $1, last_modified = $2
		 WHERE id = $3 AND owner_id = $4 AND parent_id IS NOT NULL
		 `
	return r.updateOne(ctx, query, name, time.Now().UTC(), id, ownerID)
}

func (r *PostgresRepository) SetStarred(ctx context.Context, ownerID, id string, starred bool) error {
	query := `UPDATE folders SET starred = $1 WHERE id = $2 AND owner_id = $3`
	return r.updateOne(ctx, query, starred, id, ownerID)
}

func (r *PostgresRepository) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if dbx.InvalidText(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Move re-parents a non-root folder under destID when both belong to
// ownerID. It reports whether a row was updated; cycle checks are the
// caller's job.
func (r *PostgresRepository) Move(ctx context.Context, ownerID, id, destID string) (bool, error) {
	query :=
		`UPDATE folders SET parent_id = $1, last_modified = $2
		 WHERE id = $3 AND owner_id = $4 AND parent_id IS NOT NULL AND id <> $1
		   AND EXISTS (SELECT 1 FROM folders d WHERE d.id = $1 AND d.owner_id = $4)
		 `
	res, err := r.db.ExecContext(ctx, query, destID, time.Now().UTC(), id, ownerID)
	if dbx.InvalidText(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// DeleteMany removes the listed folders of ownerID. Files inside them must
// be deleted first.
func (r *PostgresRepository) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
