package repo

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	HistoryJSONSuffix = ".json"
	historyCurrent    = "current"
	// fixed width so that lexical order is chronological order
	historyTimeLayout = "20060102T150405.000000000Z"
)

// History is a Backend that keeps timestamped backups next to the current
// value of every key:
//
//	<key>-current.json
//	<key>-20240102T150405.123456789Z.json
type History struct {
	l            *zap.Logger
	storage      Storage
	historyDir   string // directory used for default filesystem storage
	historyLimit int
	now          func() time.Time
	mu           sync.RWMutex
}

type HistoryOption func(*History)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func HistoryWithHistoryLimit(v int) HistoryOption {
	return func(o *History) {
		o.historyLimit = v
	}
}

func HistoryWithHistoryDir(v string) HistoryOption {
	return func(o *History) {
		o.historyDir = v
	}
}

func HistoryWithStorage(s Storage) HistoryOption {
	return func(o *History) {
		o.storage = s
	}
}

func HistoryWithClock(v func() time.Time) HistoryOption {
	return func(o *History) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewHistory(l *zap.Logger, opts ...HistoryOption) (*History, error) {
	inst := &History{
		l:            l.Named("history"),
		historyDir:   "/var/lib/snippetserver",
		historyLimit: 2,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(inst)
	}

	// If no storage provided, create a default filesystem storage
	if inst.storage == nil {
		storage, err := NewFilesystemStorage(inst.historyDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create default filesystem storage")
		}
		inst.storage = storage
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Write stores value as a backup and as the current version of key.
func (h *History) Write(ctx context.Context, key string, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	backupKey := historyKey(key, h.now().UTC().Format(historyTimeLayout))
	currentKey := historyKey(key, historyCurrent)

	if h.historyLimit > 0 {
		if err := h.storage.Write(ctx, backupKey, value); err != nil {
			return errors.Wrap(err, "failed to write backup history file")
		}
	}

	h.l.Debug("writing files",
		zap.String("backup", backupKey),
		zap.String("current", currentKey),
	)

	if err := h.storage.Write(ctx, currentKey, value); err != nil {
		return errors.Wrap(err, "failed to write current history")
	}

	// the current version is written, stale backups are only left behind
	if err := h.cleanup(ctx, key); err != nil {
		h.l.Warn("failed to clean up history", zap.String("key", key), zap.Error(err))
	}

	return nil
}

// Read returns the current version of key.
func (h *History) Read(ctx context.Context, key string, def []byte) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, err := h.storage.Read(ctx, historyKey(key, historyCurrent))
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	} else if err != nil {
		return nil, err
	}
	return data, nil
}

// Versions lists the backups of key, newest first.
func (h *History) Versions(ctx context.Context, key string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.getHistory(ctx, key)
}

// ReadVersion returns one backup as listed by Versions.
func (h *History) ReadVersion(ctx context.Context, version string) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storage.Read(ctx, version)
}

// Close releases resources held by the history storage.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.storage != nil {
		return h.storage.Close()
	}
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func historyKey(key, version string) string {
	return key + "-" + version + HistoryJSONSuffix
}

func (h *History) getHistory(ctx context.Context, key string) (files []string, err error) {
	prefix := key + "-"
	keys, err := h.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	current := historyKey(key, historyCurrent)
	for _, k := range keys {
		if k == current || !strings.HasSuffix(k, HistoryJSONSuffix) {
			continue
		}
		// other keys may share the prefix, e.g. "snippets-team-current.json"
		version := strings.TrimSuffix(strings.TrimPrefix(k, prefix), HistoryJSONSuffix)
		if _, err := time.Parse(historyTimeLayout, version); err != nil {
			continue
		}
		files = append(files, k)
	}
	return files, nil
}

func (h *History) cleanup(ctx context.Context, key string) error {
	files, err := h.getFilesForCleanup(ctx, key, h.historyLimit)
	if err != nil {
		return err
	}

	for _, f := range files {
		h.l.Debug("removing outdated backup", zap.String("file", f))
		if err := h.storage.Delete(ctx, f); err != nil {
			return errors.Wrapf(err, "could not remove file %s", f)
		}
	}

	return nil
}

func (h *History) getFilesForCleanup(ctx context.Context, key string, historyVersions int) (files []string, err error) {
	versionFiles, err := h.getHistory(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate file cleanup list")
	}

	if len(versionFiles) > historyVersions {
		files = append(files, versionFiles[historyVersions:]...)
	}
	return files, nil
}
