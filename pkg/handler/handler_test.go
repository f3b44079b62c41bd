package handler

import (
	"testing"

	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/foomo/snippetserver/snippet"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRepo(t *testing.T, names ...string) *repo.Repo {
	t.Helper()
	storage, err := repo.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	r, err := repo.New(t.Context(), zaptest.NewLogger(t), repo.NewStorageBackend(storage))
	require.NoError(t, err)
	for _, name := range names {
		_, err := r.Create(t.Context(), snippet.Input{Name: name, Body: []string{name}, Language: "go"})
		require.NoError(t, err)
	}
	return r
}
