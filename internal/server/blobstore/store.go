// Package blobstore keeps raw file contents addressed by file id. It holds
// no metadata and is not transactional with the relational store.
package blobstore

import "context"

// Store is the content blob store. Read and Delete report
// common.ErrorNotFound for an unknown id.
type Store interface {
	Write(ctx context.Context, id string, data []byte) error
	Read(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
