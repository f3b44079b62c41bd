package repo

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// bucket drivers selectable by url scheme
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStorage keeps every key as one object of a gocloud bucket, optionally
// below a directory-like prefix. Several storages may share a bucket as long
// as their prefixes differ.
type BlobStorage struct {
	bucket *blob.Bucket
	dir    string
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewBlobStorage opens bucketURL, e.g. "gs://snippets", "s3://snippets?region=eu-central-1",
// "file:///var/lib/snippetserver" or "mem://".
func NewBlobStorage(ctx context.Context, bucketURL, prefix string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bucket %q", bucketURL)
	}
	return NewBlobStorageFromBucket(bucket, prefix), nil
}

// NewBlobStorageFromBucket uses an already opened bucket. Close closes it.
func NewBlobStorageFromBucket(bucket *blob.Bucket, prefix string) *BlobStorage {
	return &BlobStorage{
		bucket: bucket,
		dir:    strings.Trim(prefix, "/"),
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *BlobStorage) Write(ctx context.Context, key string, data []byte) error {
	objectKey, err := b.objectKey(key)
	if err != nil {
		return err
	}
	opts := &blob.WriterOptions{ContentType: contentTypeForKey(key)}
	return errors.Wrapf(b.bucket.WriteAll(ctx, objectKey, data, opts), "failed to write %q", key)
}

func (b *BlobStorage) Read(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := b.objectKey(key)
	if err != nil {
		return nil, err
	}
	data, err := b.bucket.ReadAll(ctx, objectKey)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, os.ErrNotExist
	}
	return data, err
}

// List returns the keys starting with prefix, newest version first. Like the
// filesystem storage it does not descend into "subdirectories".
func (b *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	base := ""
	if b.dir != "" {
		base = b.dir + "/"
	}

	var keys []string
	iter := b.bucket.List(&blob.ListOptions{Prefix: base + prefix, Delimiter: "/"})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to list %q", prefix)
		}
		if !obj.IsDir {
			keys = append(keys, strings.TrimPrefix(obj.Key, base))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// Delete removes key, missing keys are ignored.
func (b *BlobStorage) Delete(ctx context.Context, key string) error {
	objectKey, err := b.objectKey(key)
	if err != nil {
		return err
	}
	if err := b.bucket.Delete(ctx, objectKey); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return errors.Wrapf(err, "failed to delete %q", key)
	}
	return nil
}

func (b *BlobStorage) Close() error {
	return b.bucket.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (b *BlobStorage) objectKey(key string) (string, error) {
	if key == "." || !fs.ValidPath(key) {
		return "", errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return path.Join(b.dir, key), nil
}

func contentTypeForKey(key string) string {
	if FormatForKey(key) == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}
