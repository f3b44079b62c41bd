package repo

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// Backend is the key/value persistence the repo loads from and writes back to
type Backend interface {
	// Read returns the value stored for key or def if there is none.
	Read(ctx context.Context, key string, def []byte) ([]byte, error)
	// Write replaces the value stored for key.
	Write(ctx context.Context, key string, value []byte) error
	// Close releases the backend.
	Close() error
}

// StorageBackend stores every key as one object of a Storage
type StorageBackend struct {
	storage Storage
	suffix  string
}

// NewStorageBackend returns a backend writing "<key>.json" objects
func NewStorageBackend(storage Storage) *StorageBackend {
	return &StorageBackend{
		storage: storage,
		suffix:  ".json",
	}
}

func (b *StorageBackend) Read(ctx context.Context, key string, def []byte) ([]byte, error) {
	data, err := b.storage.Read(ctx, key+b.suffix)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	} else if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *StorageBackend) Write(ctx context.Context, key string, value []byte) error {
	return b.storage.Write(ctx, key+b.suffix, value)
}

func (b *StorageBackend) Close() error {
	return b.storage.Close()
}
