package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/foomo/snippetserver/snippet"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingBackend struct {
	Backend
	fail bool
}

func (b *failingBackend) Write(ctx context.Context, key string, value []byte) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.Backend.Write(ctx, key, value)
}

func newTestRepo(t *testing.T, opts ...Option) (*Repo, Backend) {
	t.Helper()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	backend := NewStorageBackend(storage)
	r, err := New(t.Context(), zaptest.NewLogger(t), backend, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, backend
}

// tick returns a clock advancing by one second per call
func tick() func() time.Time {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func input(name string) snippet.Input {
	return snippet.Input{
		Name:     name,
		Body:     []string{"x"},
		Language: snippet.PlainText,
		Tags:     []string{},
		Folder:   snippet.DefaultFolder,
	}
}

func names(snippets []snippet.Snippet) []string {
	ret := make([]string, 0, len(snippets))
	for _, s := range snippets {
		ret = append(ret, s.Name)
	}
	return ret
}

func TestCreate(t *testing.T) {
	r, _ := newTestRepo(t)
	in := snippet.Input{
		Name:        "http get",
		Description: "simple request",
		Body:        []string{"resp, err := http.Get(url)", "defer resp.Body.Close()"},
		Language:    "go",
		Tags:        []string{"http", "net"},
		Folder:      "Go",
	}

	s, err := r.Create(t.Context(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.Created, s.Modified)
	assert.Equal(t, in, s.Input())

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestCreateDefaults(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), snippet.Input{Name: "  trimmed  "})
	require.NoError(t, err)
	assert.Equal(t, "trimmed", s.Name)
	assert.Equal(t, snippet.DefaultFolder, s.Folder)
	assert.Empty(t, s.Description)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(t.Context(), snippet.Input{Name: "   "})
	var ve snippet.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, r.List())
}

func TestCreateUniqueIDs(t *testing.T) {
	r, _ := newTestRepo(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		// duplicate names are allowed
		s, err := r.Create(t.Context(), input("same"))
		require.NoError(t, err)
		require.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
	}
	assert.Len(t, r.List(), 100)
}

func TestListInsertionOrder(t *testing.T) {
	r, _ := newTestRepo(t)
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Create(t.Context(), input(name))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names(r.List()))
}

func TestListReturnsCopies(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	list := r.List()
	list[0].Name = "changed"
	list[0].Body[0] = "changed"

	got, _ := r.Get(s.ID)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []string{"x"}, got.Body)
}

func TestGetNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	r, _ := newTestRepo(t)
	a, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)
	_, err = r.Create(t.Context(), input("b"))
	require.NoError(t, err)

	require.NoError(t, r.Delete(t.Context(), a.ID))
	_, ok := r.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, names(r.List()))
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)
	before := r.List()

	require.NoError(t, r.Delete(t.Context(), "unknown"))
	assert.Equal(t, before, r.List())
}

func TestUpdateName(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(tick()))
	s, err := r.Create(t.Context(), snippet.Input{
		Name:        "a",
		Description: "d",
		Body:        []string{"x"},
		Language:    "go",
		Tags:        []string{"t"},
		Folder:      "F",
	})
	require.NoError(t, err)

	name := "X"
	require.NoError(t, r.Update(t.Context(), s.ID, snippet.Patch{Name: &name}))

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "X", got.Name)
	assert.True(t, got.Modified.After(s.Modified))

	// everything else is untouched
	got.Name = s.Name
	got.Modified = s.Modified
	assert.Equal(t, s, got)
}

func TestUpdateBody(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	body := []string{"x", "y"}
	require.NoError(t, r.Update(t.Context(), s.ID, snippet.Patch{Body: &body}))

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, got.Body)
	assert.Equal(t, "a", got.Name)
}

func TestUpdateModifiedNeverDecreases(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r, _ := newTestRepo(t, WithClock(clock))
	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	// clock jumps backwards
	now = now.Add(-time.Hour)
	desc := "d"
	require.NoError(t, r.Update(t.Context(), s.ID, snippet.Patch{Description: &desc}))

	got, _ := r.Get(s.ID)
	assert.Equal(t, s.Modified, got.Modified)
	assert.False(t, got.Modified.Before(got.Created))
}

func TestUpdateUnknown(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)
	before := r.List()

	name := "X"
	err = r.Update(t.Context(), "unknown", snippet.Patch{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before, r.List())
}

func TestUpdateRejectsEmptyName(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	name := " "
	err = r.Update(t.Context(), s.ID, snippet.Patch{Name: &name})
	var ve snippet.ValidationError
	require.ErrorAs(t, err, &ve)
	got, _ := r.Get(s.ID)
	assert.Equal(t, "a", got.Name)
}

func TestUpdateRejectsEmptyFolder(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), snippet.Input{Name: "a", Folder: "Go"})
	require.NoError(t, err)

	folder := ""
	err = r.Update(t.Context(), s.ID, snippet.Patch{Folder: &folder})
	var ve snippet.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "folder", ve[0].Field)
	got, _ := r.Get(s.ID)
	assert.Equal(t, "Go", got.Folder)
}

func TestSearch(t *testing.T) {
	r, _ := newTestRepo(t)
	for _, name := range []string{"foo", "bar", "FooBar"} {
		_, err := r.Create(t.Context(), input(name))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"foo", "FooBar"}, names(r.Search("foo")))
	assert.Equal(t, []string{"foo", "FooBar"}, names(r.Search("FOO")))
	assert.Equal(t, []string{"foo", "bar", "FooBar"}, names(r.Search("")))
	assert.Empty(t, r.Search("baz"))
}

func TestSearchFields(t *testing.T) {
	r, _ := newTestRepo(t)
	byDesc := input("one")
	byDesc.Description = "Parses YAML"
	byTag := input("two")
	byTag.Tags = []string{"misc", "YamlStuff"}
	for _, in := range []snippet.Input{byDesc, byTag, input("three")} {
		_, err := r.Create(t.Context(), in)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"one", "two"}, names(r.Search("yaml")))
	assert.Equal(t, []string{"two"}, names(r.Search("misc")))
}

func TestCompletions(t *testing.T) {
	r, _ := newTestRepo(t)
	for name, language := range map[string]string{"g": "go", "p": "python"} {
		in := input(name)
		in.Language = language
		_, err := r.Create(t.Context(), in)
		require.NoError(t, err)
	}
	_, err := r.Create(t.Context(), input("txt"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"g", "txt"}, names(r.Completions("go")))
	assert.Equal(t, []string{"txt"}, names(r.Completions("rust")))
}

func TestFolders(t *testing.T) {
	r, _ := newTestRepo(t)
	for _, v := range [][2]string{{"a", "Go"}, {"b", ""}, {"c", "Go"}} {
		in := input(v[0])
		in.Folder = v[1]
		_, err := r.Create(t.Context(), in)
		require.NoError(t, err)
	}

	folders := r.Folders()
	require.Len(t, folders, 2)
	assert.Equal(t, "Go", folders[0].Name)
	assert.Equal(t, []string{"a", "c"}, names(folders[0].Snippets))
	assert.Equal(t, snippet.DefaultFolder, folders[1].Name)
	assert.Equal(t, []string{"b"}, names(folders[1].Snippets))
}

func TestDuplicate(t *testing.T) {
	r, _ := newTestRepo(t)
	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	c, err := r.Duplicate(t.Context(), s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, c.ID)
	assert.Equal(t, "a (Copy)", c.Name)
	assert.Equal(t, s.Body, c.Body)
	assert.Len(t, r.List(), 2)

	_, err = r.Duplicate(t.Context(), "unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPersistence(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	l := zaptest.NewLogger(t)

	r, err := New(t.Context(), l, NewStorageBackend(storage))
	require.NoError(t, err)
	a, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)
	_, err = r.Create(t.Context(), input("b"))
	require.NoError(t, err)
	require.NoError(t, r.Delete(t.Context(), a.ID))

	reloaded, err := New(t.Context(), l, NewStorageBackend(storage))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(reloaded.List()))
}

func TestLoadBrokenData(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Write(t.Context(), DefaultKey+".json", []byte("{broken")))

	_, err = New(t.Context(), zaptest.NewLogger(t), NewStorageBackend(storage))
	require.Error(t, err)
}

func TestLoadReplacesDuplicateIDs(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	data := `[{"id":"1","name":"a"},{"id":"1","name":"b"},{"name":"c"}]`
	require.NoError(t, storage.Write(t.Context(), DefaultKey+".json", []byte(data)))

	r, err := New(t.Context(), zaptest.NewLogger(t), NewStorageBackend(storage))
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, s := range r.List() {
		require.NotEmpty(t, s.ID)
		ids[s.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, "1", r.List()[0].ID)
}

func TestPersistFailureKeepsState(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	backend := &failingBackend{Backend: NewStorageBackend(storage)}
	r, err := New(t.Context(), zaptest.NewLogger(t), backend)
	require.NoError(t, err)

	s, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	backend.fail = true
	_, err = r.Create(t.Context(), input("b"))
	require.Error(t, err)
	name := "X"
	require.Error(t, r.Update(t.Context(), s.ID, snippet.Patch{Name: &name}))
	require.Error(t, r.Delete(t.Context(), s.ID))

	assert.Equal(t, []string{"a"}, names(r.List()))
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			src, _ := newTestRepo(t)
			inputs := []snippet.Input{
				{Name: "a", Description: "first", Body: []string{"x", "y"}, Language: "go", Tags: []string{"t1"}, Folder: "Go"},
				{Name: "a", Body: []string{}, Language: snippet.PlainText, Tags: []string{}, Folder: snippet.DefaultFolder},
				{Name: "c", Description: "multi\nline", Body: []string{""}, Language: "yaml", Tags: []string{"x", "y"}, Folder: "Conf"},
			}
			for _, in := range inputs {
				_, err := src.Create(t.Context(), in)
				require.NoError(t, err)
			}

			data, err := src.Export(format)
			require.NoError(t, err)

			dst, _ := newTestRepo(t)
			n, err := dst.Import(t.Context(), data, format)
			require.NoError(t, err)
			assert.Equal(t, len(inputs), n)

			ignore := cmpopts.IgnoreFields(snippet.Snippet{}, "ID", "Created", "Modified")
			if diff := cmp.Diff(src.List(), dst.List(), ignore, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			for i, s := range dst.List() {
				assert.NotEqual(t, src.List()[i].ID, s.ID)
			}
		})
	}
}

func TestImportAssignsFreshIDs(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(tick()))
	existing, err := r.Create(t.Context(), input("existing"))
	require.NoError(t, err)

	data := fmt.Sprintf(`[{"id":%q,"name":"imported","created":"2001-01-01T00:00:00Z","modified":"2001-01-01T00:00:00Z"}]`, existing.ID)
	n, err := r.Import(t.Context(), []byte(data), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list := r.List()
	require.Len(t, list, 2)
	assert.NotEqual(t, existing.ID, list[1].ID)
	assert.Equal(t, "imported", list[1].Name)
	assert.Equal(t, snippet.DefaultFolder, list[1].Folder)
	assert.True(t, list[1].Created.After(existing.Created))
	assert.Equal(t, list[1].Created, list[1].Modified)
}

func TestImportMalformed(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	for name, data := range map[string]string{
		"not json":     "{",
		"not a list":   `{"name":"a"}`,
		"wrong type":   `[{"name":"ok"},{"name":1}]`,
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Import(t.Context(), []byte(data), FormatJSON)
			require.ErrorIs(t, err, ErrMalformed)
			// nothing of a failed import is kept
			assert.Equal(t, []string{"a"}, names(r.List()))
		})
	}
}

func TestImportPartialRecords(t *testing.T) {
	r, _ := newTestRepo(t)
	n, err := r.Import(t.Context(), []byte(`[{"body":["x"],"language":"go"},{"name":"named"}]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := r.List()
	require.Len(t, list, 2)
	assert.Empty(t, list[0].Name)
	assert.Equal(t, []string{"x"}, list[0].Body)
	assert.Equal(t, "go", list[0].Language)
	assert.Equal(t, snippet.DefaultFolder, list[0].Folder)
	assert.Equal(t, []string{}, list[1].Body)
	assert.Equal(t, []string{}, list[1].Tags)
}

func TestExportImportKeepsFolderAfterUpdate(t *testing.T) {
	src, _ := newTestRepo(t)
	s, err := src.Create(t.Context(), input("a"))
	require.NoError(t, err)
	folder := "Shell"
	require.NoError(t, src.Update(t.Context(), s.ID, snippet.Patch{Folder: &folder}))
	empty := ""
	require.Error(t, src.Update(t.Context(), s.ID, snippet.Patch{Folder: &empty}))

	data, err := src.Export(FormatJSON)
	require.NoError(t, err)
	dst, _ := newTestRepo(t)
	_, err = dst.Import(t.Context(), data, FormatJSON)
	require.NoError(t, err)

	require.Len(t, dst.List(), 1)
	assert.Equal(t, "Shell", dst.List()[0].Folder)
}

func TestLoadFillsEmptyFolder(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Write(t.Context(), DefaultKey+".json", []byte(`[{"id":"1","name":"a","folder":""}]`)))

	r, err := New(t.Context(), zaptest.NewLogger(t), NewStorageBackend(storage))
	require.NoError(t, err)
	assert.Equal(t, snippet.DefaultFolder, r.List()[0].Folder)

	// export and import agree on the folder
	data, err := r.Export(FormatJSON)
	require.NoError(t, err)
	dst, _ := newTestRepo(t)
	_, err = dst.Import(t.Context(), data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, r.List()[0].Folder, dst.List()[0].Folder)
}

func TestRestore(t *testing.T) {
	r, backend := newTestRepo(t, WithClock(tick()))
	a, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)
	snapshot, err := backend.Read(t.Context(), DefaultKey, nil)
	require.NoError(t, err)

	_, err = r.Create(t.Context(), input("b"))
	require.NoError(t, err)

	n, err := r.Restore(t.Context(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, r.List(), 1)
	assert.Equal(t, a.ID, r.List()[0].ID)
	assert.True(t, a.Created.Equal(r.List()[0].Created))

	_, err = r.Restore(t.Context(), []byte("{"))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, r.List(), 1)
}

func TestImportExportFiles(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(t.Context(), input("a"))
	require.NoError(t, err)

	files, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, r.ExportFile(t.Context(), files, "export.yaml"))

	data, err := files.Read(t.Context(), "export.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: a")

	dst, _ := newTestRepo(t)
	n, err := dst.ImportFile(t.Context(), files, "export.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = dst.ImportFile(t.Context(), files, "missing.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestExportWriteFailure(t *testing.T) {
	r, _ := newTestRepo(t)
	files, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	require.Error(t, r.ExportFile(t.Context(), files, "../outside.json"))
}
