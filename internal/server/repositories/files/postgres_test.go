package files

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileColumns = []string{"id", "name", "file_type", "size", "owner_id", "parent_id", "starred", "last_modified"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp), sqlmock.ValueConverterOption(pgArrays{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

// pgArrays passes []string arguments through unchanged, as pgx does.
type pgArrays struct{}

func (pgArrays) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]string); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func TestCreate(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+files\s*\(id,\s*name,\s*file_type,\s*size,\s*owner_id,\s*parent_id,\s*starred,\s*last_modified\)\s*VALUES\s*\(\$1,.*\$8\)\s*$`
	now := time.Now().UTC()

	t.Run("typed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).
			WithArgs("file-1", "a.txt", "Text", int64(10), "u-1", "f-1", false, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), &models.File{
			ID: "file-1", Name: "a.txt", FileType: "Text", Size: 10, OwnerID: "u-1", ParentID: "f-1", LastModified: now,
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("untyped stores null", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).
			WithArgs("file-2", "blob.bin", nil, int64(0), "u-1", "f-1", false, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), &models.File{
			ID: "file-2", Name: "blob.bin", OwnerID: "u-1", ParentID: "f-1", LastModified: now,
		})
		require.NoError(t, err)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(errors.New("boom"))
		assert.ErrorContains(t, repo.Create(context.Background(), &models.File{ID: "x"}), "db error")
	})
}

func TestGet(t *testing.T) {
	q := `^SELECT id, name, file_type, size, owner_id, parent_id, starred, last_modified FROM files WHERE id = \$1 AND owner_id = \$2$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WithArgs("file-1", "u-1").
			WillReturnRows(sqlmock.NewRows(fileColumns).AddRow("file-1", "a.png", "Image", int64(5), "u-1", "f-1", true, time.Now()))

		f, err := repo.Get(context.Background(), "u-1", "file-1")
		require.NoError(t, err)
		assert.Equal(t, "Image", f.FileType)
		assert.Equal(t, int64(5), f.Size)
		assert.Equal(t, "f-1", f.ParentID)
		assert.True(t, f.Starred)
	})

	t.Run("null type", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WithArgs("file-1", "u-1").
			WillReturnRows(sqlmock.NewRows(fileColumns).AddRow("file-1", "a.bin", nil, int64(5), "u-1", "f-1", false, time.Now()))

		f, err := repo.Get(context.Background(), "u-1", "file-1")
		require.NoError(t, err)
		assert.Empty(t, f.FileType)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("file-1", "u-2").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "u-2", "file-1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestListByParents(t *testing.T) {
	t.Run("lists", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM files WHERE owner_id = \$1 AND parent_id = ANY\(\$2\) ORDER BY name, id$`).
			WithArgs("u-1", []string{"f-1", "f-2"}).
			WillReturnRows(sqlmock.NewRows(fileColumns).
				AddRow("a", "a.txt", "Text", int64(1), "u-1", "f-1", false, time.Now()).
				AddRow("b", "b.txt", "Text", int64(2), "u-1", "f-2", false, time.Now()))

		got, err := repo.ListByParents(context.Background(), "u-1", []string{"f-1", "f-2"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "f-2", got[1].ParentID)
	})

	t.Run("no parents", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		got, err := repo.ListByParents(context.Background(), "u-1", nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM files`).WillReturnError(errors.New("boom"))
		_, err := repo.ListByParents(context.Background(), "u-1", []string{"f-1"})
		assert.ErrorContains(t, err, "failed to select files")
	})
}

func TestSumSize(t *testing.T) {
	t.Run("all types", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT COALESCE\(SUM\(size\), 0\) FROM files WHERE owner_id = \$1 AND parent_id = ANY\(\$2\)$`).
			WithArgs("u-1", []string{"f-1"}).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(500000)))

		n, err := repo.SumSize(context.Background(), "u-1", []string{"f-1"}, "")
		require.NoError(t, err)
		assert.Equal(t, int64(500000), n)
	})

	t.Run("filtered", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`parent_id = ANY\(\$2\) AND file_type = \$3$`).
			WithArgs("u-1", []string{"f-1", "f-2"}, "Image").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(7)))

		n, err := repo.SumSize(context.Background(), "u-1", []string{"f-1", "f-2"}, "Image")
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})

	t.Run("empty set", func(t *testing.T) {
		repo, _ := newRepoWithMock(t)
		n, err := repo.SumSize(context.Background(), "u-1", nil, "")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`SUM`).WillReturnError(errors.New("boom"))
		_, err := repo.SumSize(context.Background(), "u-1", []string{"f-1"}, "")
		assert.ErrorContains(t, err, "db error")
	})
}

func TestSingleRowUpdates(t *testing.T) {
	t.Run("rename", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`(?s)^UPDATE\s+files\s+SET\s+name\s*=\s*\$1,\s*last_modified\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s+AND\s+owner_id\s*=\s*\$4\s*$`).
			WithArgs("b.txt", sqlmock.AnyArg(), "file-1", "u-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Rename(context.Background(), "u-1", "file-1", "b.txt"))
	})

	t.Run("star missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^UPDATE files SET starred = \$1 WHERE id = \$2 AND owner_id = \$3$`).
			WithArgs(false, "file-9", "u-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.SetStarred(context.Background(), "u-1", "file-9", false), common.ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM files WHERE id = \$1 AND owner_id = \$2$`).
			WithArgs("file-1", "u-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), "u-1", "file-1"))
	})

	t.Run("delete db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM files`).WillReturnError(errors.New("boom"))
		err := repo.Delete(context.Background(), "u-1", "file-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestMove(t *testing.T) {
	q := `(?s)^UPDATE\s+files\s+SET\s+parent_id\s*=\s*\$1.+EXISTS\s*\(SELECT\s+1\s+FROM\s+folders`

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).WithArgs("dst", sqlmock.AnyArg(), "file-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("foreign", sqlmock.AnyArg(), "file-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Move(context.Background(), "u-1", "file-1", "dst")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Move(context.Background(), "u-1", "file-1", "foreign")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMany(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^DELETE FROM files WHERE owner_id = \$1 AND id = ANY\(\$2\)$`).
		WithArgs("u-1", []string{"a", "b"}).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteMany(context.Background(), "u-1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteMany(context.Background(), "u-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteMany_LargeListIsOneParameter(t *testing.T) {
	ids := make([]string, 70_000)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^DELETE FROM files WHERE owner_id = \$1 AND id = ANY\(\$2\)$`).
		WithArgs("u-1", ids).
		WillReturnResult(sqlmock.NewResult(0, int64(len(ids))))

	n, err := repo.DeleteMany(context.Background(), "u-1", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), n)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	t.Run("get", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM files WHERE id = \$1`).WithArgs("abc", "u-1").WillReturnError(badUUID)
		_, err := repo.Get(context.Background(), "u-1", "abc")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("rename", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^UPDATE\s+files\s+SET\s+name`).WillReturnError(badUUID)
		assert.ErrorIs(t, repo.Rename(context.Background(), "u-1", "abc", "x"), common.ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM files WHERE id`).WillReturnError(badUUID)
		assert.ErrorIs(t, repo.Delete(context.Background(), "u-1", "abc"), common.ErrorNotFound)
	})

	t.Run("move", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^UPDATE\s+files\s+SET\s+parent_id`).WillReturnError(badUUID)
		ok, err := repo.Move(context.Background(), "u-1", "abc", "dst")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
