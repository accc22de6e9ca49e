package files

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

const columns = `id, name, file_type, size, owner_id, parent_id, starred, last_modified`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.File) error {
	query :=
		`INSERT INTO files (id, name, file_type, size, owner_id, parent_id, starred, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	var fileType any
	if f.FileType != "" {
		fileType = f.FileType
	}

	_, err := r.db.ExecContext(ctx, query, f.ID, f.Name, fileType, f.Size, f.OwnerID, f.ParentID, f.Starred, f.LastModified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*models.File, error) {
	query := `SELECT ` + columns + ` FROM files WHERE id = $1 AND owner_id = $2`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.InvalidText(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByParents returns the owner's files whose parent is one of parentIDs.
func (r *PostgresRepository) ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + columns + ` FROM files WHERE owner_id = $1 AND parent_id = ANY($2) ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
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

// SumSize adds up the sizes of the owner's files under parentIDs. A non-empty
// fileType restricts the sum to that category.
func (r *PostgresRepository) SumSize(ctx context.Context, ownerID string, parentIDs []string, fileType string) (int64, error) {
	if len(parentIDs) == 0 {
		return 0, nil
	}

	query := `SELECT COALESCE(SUM(size), 0) FROM files WHERE owner_id = $1 AND parent_id = ANY($2)`
	args := []any{ownerID, parentIDs}
	if fileType != "" {
		query += ` AND file_type = $3`
		args = append(args, fileType)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var (
		f        models.File
		fileType sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &fileType, &f.Size, &f.OwnerID, &f.ParentID, &f.Starred, &f.LastModified); err != nil {
		return nil, err
	}
	f.FileType = fileType.String
	return &f, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, ownerID, id, name string) error {
	query :=
		`UPDATE files SET name = $1, last_modified = $2
		 WHERE id = $3 AND owner_id = $4
		 `
	return r.execOne(ctx, query, name, time.Now().UTC(), id, ownerID)
}

func (r *PostgresRepository) SetStarred(ctx context.Context, ownerID, id string, starred bool) error {
	query := `UPDATE files SET starred = $1 WHERE id = $2 AND owner_id = $3`
	return r.execOne(ctx, query, starred, id, ownerID)
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	return r.execOne(ctx, `DELETE FROM files WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
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

// Move re-parents a file under destID when both belong to ownerID.
func (r *PostgresRepository) Move(ctx context.Context, ownerID, id, destID string) (bool, error) {
	query :=
		`UPDATE files SET parent_id = $1, last_modified = $2
		 WHERE id = $3 AND owner_id = $4
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

func (r *PostgresRepository) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
