package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/mycloud/internal/dbx"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/files"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/folders"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Folders(db dbx.DBTX) folders.Repository
	Files(db dbx.DBTX) files.Repository
}
