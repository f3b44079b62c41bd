package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	storageTypeFilesystem = "filesystem"
	storageTypeBlob       = "blob"
	storageTypeSQLite     = "sqlite"
)

// supportedBlobSchemes lists the URL schemes supported by blob storage
var supportedBlobSchemes = []string{"gs://", "s3://", "azblob://", "file://", "mem://"}

// newRepo loads the snippet store from the backend selected by the flags
func newRepo(ctx context.Context, v *viper.Viper, l *zap.Logger) (*repo.Repo, error) {
	backend, err := createBackend(ctx, v, l)
	if err != nil {
		return nil, err
	}

	r, err := repo.New(ctx, l, backend, repo.WithKey(storeKeyFlag(v)))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return r, nil
}

// createBackend creates the persistence backend based on the configuration
func createBackend(ctx context.Context, v *viper.Viper, l *zap.Logger) (repo.Backend, error) {
	if storageTypeFlag(v) == storageTypeSQLite {
		dsn := storageSQLiteDSNFlag(v)
		l.Info("using sqlite backend", zap.String("dsn", dsn))
		backend, err := repo.NewSQLBackend(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite backend: %w", err)
		}
		return backend, nil
	}

	storage, err := createStorage(ctx, v, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	history, err := repo.NewHistory(l.Named("inst.history"),
		repo.HistoryWithStorage(storage),
		repo.HistoryWithHistoryDir(historyDirFlag(v)),
		repo.HistoryWithHistoryLimit(historyLimitFlag(v)),
	)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to create history: %w", err)
	}
	return history, nil
}

// createStorage creates a storage based on the configuration
func createStorage(ctx context.Context, v *viper.Viper, l *zap.Logger) (repo.Storage, error) {
	storageType := storageTypeFlag(v)
	blobBucket := storageBlobBucketFlag(v)
	blobPrefix := storageBlobPrefixFlag(v)

	// Warn about ignored blob config
	if storageType != storageTypeBlob && (blobBucket != "" || blobPrefix != "") {
		l.Warn("blob storage flags are set but storage-type is not 'blob'; blob config will be ignored",
			zap.String("storage-type", storageType),
			zap.String("blob-bucket", blobBucket),
			zap.String("blob-prefix", blobPrefix),
		)
	}

	l.Info("creating storage", zap.String("type", storageType))

	switch storageType {
	case storageTypeBlob:
		if blobBucket == "" {
			return nil, fmt.Errorf("blob bucket URL is required when storage-type is 'blob' (supported schemes: %s)", strings.Join(supportedBlobSchemes, ", "))
		}
		if !isValidBlobScheme(blobBucket) {
			return nil, fmt.Errorf("unsupported blob storage URL scheme in %q; supported schemes: %s", blobBucket, strings.Join(supportedBlobSchemes, ", "))
		}
		l.Info("using blob storage",
			zap.String("bucket", blobBucket),
			zap.String("prefix", blobPrefix),
			zap.String("provider", detectBlobProvider(blobBucket)),
		)
		return repo.NewBlobStorage(ctx, blobBucket, blobPrefix)
	case storageTypeFilesystem, "":
		dir := historyDirFlag(v)
		l.Info("using filesystem storage", zap.String("dir", dir))
		return repo.NewFilesystemStorage(dir)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (supported: filesystem, blob, sqlite)", storageType)
	}
}

// isValidBlobScheme checks if the bucket URL has a supported scheme
func isValidBlobScheme(bucketURL string) bool {
	for _, scheme := range supportedBlobSchemes {
		if strings.HasPrefix(bucketURL, scheme) {
			return true
		}
	}
	return false
}

// detectBlobProvider returns a human-readable provider name from the URL scheme
func detectBlobProvider(bucketURL string) string {
	switch {
	case strings.HasPrefix(bucketURL, "gs://"):
		return "Google Cloud Storage"
	case strings.HasPrefix(bucketURL, "s3://"):
		return "AWS S3"
	case strings.HasPrefix(bucketURL, "azblob://"):
		return "Azure Blob Storage"
	case strings.HasPrefix(bucketURL, "file://"):
		return "Local Filesystem"
	case strings.HasPrefix(bucketURL, "mem://"):
		return "In-Memory"
	default:
		return "unknown"
	}
}
