package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/logging"
	"github.com/dmitrijs2005/mycloud/internal/server/auth"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SessionStore maps opaque tokens to user ids.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Resolve(ctx context.Context, token string) (string, bool, error)
	Revoke(ctx context.Context, token string) error
}

// AccountService creates and removes users together with their forest and
// manages their sessions.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tree        *TreeService
	sessions    SessionStore
	hasher      auth.PasswordHasher
	log         logging.Logger
}

func NewAccountService(db *sql.DB, rm repomanager.RepositoryManager, tree *TreeService, sessions SessionStore, hasher auth.PasswordHasher, log logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: rm,
		tree:        tree,
		sessions:    sessions,
		hasher:      hasher,
		log:         log.With("module", "accounts"),
	}
}

// NewUser validates the credentials and inserts the user row. It does not
// create root folders; see Signup.
func (s *AccountService) NewUser(ctx context.Context, username, email, password string) (*models.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	user := &models.User{ID: uuid.NewString(), UserName: username, Email: email, PasswordHash: hash}
	return s.repomanager.Users(s.db).Create(ctx, user)
}

// Signup creates the user, its root folders and a session. If the roots
// cannot be created the account is unusable and ErrRootForestBootstrap is
// returned. A failed session only means the user has to log in; the token
// is then empty and the error nil.
func (s *AccountService) Signup(ctx context.Context, username, email, password string) (*models.User, string, error) {
	user, err := s.NewUser(ctx, username, email, password)
	if err != nil {
		return nil, "", err
	}

	if _, err := s.tree.InitRootFolders(ctx, user.ID); err != nil {
		s.log.Error(ctx, "account created without root folders", "user_id", user.ID, "error", err)
		return user, "", fmt.Errorf("%w: %w", common.ErrRootForestBootstrap, err)
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.log.Warn(ctx, "session not created after signup", "user_id", user.ID, "error", err)
		return user, "", nil
	}
	return user, token, nil
}

// Login checks the credentials and opens a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", common.ErrInvalidCredentials
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidCredentials
		}
		return "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			s.log.Warn(ctx, "password verification failed", "user_id", user.ID, "error", err)
		}
		return "", common.ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	return token, nil
}

// Logout revokes token. Unknown tokens are ignored.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// Authenticate resolves token to a user id, or ErrorUnauthorized.
func (s *AccountService) Authenticate(ctx context.Context, token string) (string, error) {
	userID, ok, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	if !ok {
		return "", common.ErrorUnauthorized
	}
	return userID, nil
}

// Me describes the user's account. Root ids are chosen by kind.
func (s *AccountService) Me(ctx context.Context, userID string) (*models.Account, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	roots, err := s.tree.Roots(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := s.tree.quota.Limits()
	account := &models.Account{
		UserName:        user.UserName,
		Email:           user.Email,
		MaxUploadBytes:  limits.MaxUploadBytes,
		MaxStorageBytes: limits.MaxStorageBytes,
	}
	for _, root := range roots {
		if root.RootKind == nil {
			continue
		}
		switch *root.RootKind {
		case models.RootPersonal:
			account.PersonalRootID = root.ID
		case models.RootTrash:
			account.TrashRootID = root.ID
		}
	}
	return account, nil
}

// DeleteUser removes all of the user's files (rows, then blobs), folders
// and finally the user row. Blobs that could not be removed do not stop
// the deletion; they are reported with ErrOrphanedBlobs.
func (s *AccountService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return err
	}

	orphaned := s.tree.DeleteForest(ctx, userID)
	if orphaned != nil && !errors.Is(orphaned, common.ErrOrphanedBlobs) {
		return orphaned
	}

	if err := s.repomanager.Users(s.db).Delete(ctx, userID); err != nil {
		return err
	}
	return orphaned
}
