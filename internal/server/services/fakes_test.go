package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/dbx"
	"github.com/dmitrijs2005/mycloud/internal/logging"
	"github.com/dmitrijs2005/mycloud/internal/server/auth"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
	filesrepo "github.com/dmitrijs2005/mycloud/internal/server/repositories/files"
	foldersrepo "github.com/dmitrijs2005/mycloud/internal/server/repositories/folders"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/mycloud/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// memDB is a shared in-memory backend for the fake repositories. It keeps
// folders in insertion order to mirror ORDER BY seq.
type memDB struct {
	mu      sync.Mutex
	users   map[string]*models.User
	folders []*models.Folder
	files   map[string]*models.File
}

func newMemDB() *memDB {
	return &memDB{users: map[string]*models.User{}, files: map[string]*models.File{}}
}

func (m *memDB) folder(ownerID, id string) *models.Folder {
	for _, f := range m.folders {
		if f.ID == id && f.OwnerID == ownerID {
			return f
		}
	}
	return nil
}

func cloneFolder(f *models.Folder) *models.Folder {
	c := *f
	if f.ParentID != nil {
		p := *f.ParentID
		c.ParentID = &p
	}
	if f.RootKind != nil {
		k := *f.RootKind
		c.RootKind = &k
	}
	return &c
}

func cloneFile(f *models.File) *models.File {
	c := *f
	return &c
}

type memUsers struct{ m *memDB }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.users {
		if other.UserName == u.UserName {
			return nil, common.ErrUsernameTaken
		}
		if other.Email == u.Email {
			return nil, common.ErrEmailTaken
		}
	}
	c := *u
	r.m.users[u.ID] = &c
	return u, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.users, id)
	return nil
}

type memFolders struct{ m *memDB }

func (r memFolders) Create(ctx context.Context, f *models.Folder) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if f.RootKind != nil {
		for _, other := range r.m.folders {
			if other.OwnerID == f.OwnerID && other.RootKind != nil && *other.RootKind == *f.RootKind {
				return common.ErrorInternal
			}
		}
	}
	r.m.folders = append(r.m.folders, cloneFolder(f))
	return nil
}

func (r memFolders) Get(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.m.folder(ownerID, id)
	if f == nil {
		return nil, common.ErrorNotFound
	}
	return cloneFolder(f), nil
}

func (r memFolders) filter(keep func(*models.Folder) bool) []*models.Folder {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Folder
	for _, f := range r.m.folders {
		if keep(f) {
			out = append(out, cloneFolder(f))
		}
	}
	return out
}

func (r memFolders) ListByOwner(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.filter(func(f *models.Folder) bool { return f.OwnerID == ownerID }), nil
}

func (r memFolders) ListChildren(ctx context.Context, ownerID, parentID string) ([]*models.Folder, error) {
	out := r.filter(func(f *models.Folder) bool {
		return f.OwnerID == ownerID && f.ParentID != nil && *f.ParentID == parentID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memFolders) Roots(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.filter(func(f *models.Folder) bool { return f.OwnerID == ownerID && f.ParentID == nil }), nil
}

func (r memFolders) LockOwner(ctx context.Context, ownerID string) error { return nil }

func (r memFolders) Rename(ctx context.Context, ownerID, id, name string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.m.folder(ownerID, id)
	if f == nil || f.ParentID == nil {
		return common.ErrorNotFound
	}
	f.Name = name
	return nil
}

func (r memFolders) SetStarred(ctx context.Context, ownerID, id string, starred bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.m.folder(ownerID, id)
	if f == nil {
		return common.ErrorNotFound
	}
	f.Starred = starred
	return nil
}

func (r memFolders) Move(ctx context.Context, ownerID, id, destID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.m.folder(ownerID, id)
	if f == nil || f.ParentID == nil || id == destID || r.m.folder(ownerID, destID) == nil {
		return false, nil
	}
	f.ParentID = &destID
	return true, nil
}

func (r memFolders) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var n int64
	kept := r.m.folders[:0]
	for _, f := range r.m.folders {
		if f.OwnerID == ownerID && drop[f.ID] {
			n++
			continue
		}
		kept = append(kept, f)
	}
	r.m.folders = kept
	return n, nil
}

type memFiles struct{ m *memDB }

func (r memFiles) Create(ctx context.Context, f *models.File) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.folder(f.OwnerID, f.ParentID) == nil {
		return common.ErrorInternal
	}
	r.m.files[f.ID] = cloneFile(f)
	return nil
}

func (r memFiles) get(ownerID, id string) *models.File {
	f, ok := r.m.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil
	}
	return f
}

func (r memFiles) Get(ctx context.Context, ownerID, id string) (*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.get(ownerID, id)
	if f == nil {
		return nil, common.ErrorNotFound
	}
	return cloneFile(f), nil
}

func (r memFiles) ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}
	var out []*models.File
	for _, f := range r.m.files {
		if f.OwnerID == ownerID && parents[f.ParentID] {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name+out[i].ID < out[j].Name+out[j].ID })
	return out, nil
}

func (r memFiles) SumSize(ctx context.Context, ownerID string, parentIDs []string, fileType string) (int64, error) {
	list, _ := r.ListByParents(ctx, ownerID, parentIDs)
	var total int64
	for _, f := range list {
		if fileType == "" || f.FileType == fileType {
			total += f.Size
		}
	}
	return total, nil
}

func (r memFiles) Rename(ctx context.Context, ownerID, id, name string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.get(ownerID, id)
	if f == nil {
		return common.ErrorNotFound
	}
	f.Name = name
	return nil
}

func (r memFiles) SetStarred(ctx context.Context, ownerID, id string, starred bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.get(ownerID, id)
	if f == nil {
		return common.ErrorNotFound
	}
	f.Starred = starred
	return nil
}

func (r memFiles) Move(ctx context.Context, ownerID, id, destID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f := r.get(ownerID, id)
	if f == nil || r.m.folder(ownerID, destID) == nil {
		return false, nil
	}
	f.ParentID = destID
	return true, nil
}

func (r memFiles) Delete(ctx context.Context, ownerID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.get(ownerID, id) == nil {
		return common.ErrorNotFound
	}
	delete(r.m.files, id)
	return nil
}

func (r memFiles) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r.get(ownerID, id) != nil {
			delete(r.m.files, id)
			n++
		}
	}
	return n, nil
}

// fakeRepoManager serves repositories over memDB. Non-nil override fields
// replace the default repository, which lets tests inject failures.
type fakeRepoManager struct {
	mem *memDB

	users   usersrepo.Repository
	folders foldersrepo.Repository
	files   filesrepo.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository {
	if m.users != nil {
		return m.users
	}
	return memUsers{m.mem}
}

func (m *fakeRepoManager) Folders(db dbx.DBTX) foldersrepo.Repository {
	if m.folders != nil {
		return m.folders
	}
	return memFolders{m.mem}
}

func (m *fakeRepoManager) Files(db dbx.DBTX) filesrepo.Repository {
	if m.files != nil {
		return m.files
	}
	return memFiles{m.mem}
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

// memBlobs is an in-memory blobstore.Store with injectable failures.
type memBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	writeErr  error
	readErr   error
	deleteErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Write(ctx context.Context, id string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.data[id] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Read(ctx context.Context, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	d, ok := b.data[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBlobs) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.data[id]; !ok {
		return common.ErrorNotFound
	}
	delete(b.data, id)
	return nil
}

func (b *memBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu        sync.Mutex
	tokens    map[string]string
	next      int
	createErr error
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: map[string]string{}}
}

func (s *memSessions) Create(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.next++
	token := "tok-" + string(rune('a'+s.next))
	s.tokens[token] = userID
	return token, nil
}

func (s *memSessions) Resolve(ctx context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	return u, ok, nil
}

func (s *memSessions) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// plainHasher stores passwords with a prefix; good enough for tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) ([]byte, error) { return []byte("h:" + password), nil }

func (plainHasher) Verify(hash []byte, password string) error {
	if string(hash) != "h:"+password {
		return auth.ErrMismatch
	}
	return nil
}

// newSQLiteDB opens an empty in-memory database. Repositories are faked, so
// it only provides real BeginTx/Commit/Rollback for dbx.WithTx.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type env struct {
	db       *sql.DB
	mem      *memDB
	rm       *fakeRepoManager
	blobs    *memBlobs
	sessions *memSessions
	quota    *QuotaEnforcer
	tree     *TreeService
	accounts *AccountService
}

func newEnv(t *testing.T, limits Limits) *env {
	t.Helper()
	e := &env{
		db:       newSQLiteDB(t),
		mem:      newMemDB(),
		blobs:    newMemBlobs(),
		sessions: newMemSessions(),
	}
	e.rm = &fakeRepoManager{mem: e.mem}
	e.quota = NewQuotaEnforcer(e.db, e.rm, limits)
	e.tree = NewTreeService(e.db, e.rm, e.blobs, e.quota, logging.Nop{})
	e.accounts = NewAccountService(e.db, e.rm, e.tree, e.sessions, plainHasher{}, logging.Nop{})
	return e
}

// signup creates a user with both roots and returns the user id and the
// personal and trash root ids.
func (e *env) signup(t *testing.T, username string) (userID, personal, trash string) {
	t.Helper()
	user, _, err := e.accounts.Signup(context.Background(), username, username+"@example.com", "password1")
	require.NoError(t, err)
	acc, err := e.accounts.Me(context.Background(), user.ID)
	require.NoError(t, err)
	return user.ID, acc.PersonalRootID, acc.TrashRootID
}
