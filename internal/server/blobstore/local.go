package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/filex"
	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("invalid blob id")

// LocalStore keeps one file per blob in a flat directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("can't create blob dir: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// path maps id to a file name, refusing anything that is not a uuid so an id
// can never escape the directory.
func (s *LocalStore) path(id string) (string, error) {
	if err := uuid.Validate(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id), nil
}

// Write stores data under id, replacing any previous content. The file is
// written to a temp name and renamed so readers never see a partial blob.
func (s *LocalStore) Write(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+".*")
	if err != nil {
		return fmt.Errorf("can't create blob file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("can't write blob file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("can't write blob file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("can't store blob file: %w", err)
	}
	return nil
}

func (s *LocalStore) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("can't read blob file: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("can't delete blob file: %w", err)
	}
	return nil
}
