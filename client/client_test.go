package client_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/foomo/snippetserver/client"
	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/foomo/snippetserver/snippet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/nettest"
	"golang.org/x/sync/errgroup"
)

const pathSnippetserver = "/snippetserver"

func TestInvalidHTTPClientInit(t *testing.T) {
	for _, server := range []string{"", "bogus", "htt:/notaurl", "htts://notaurl", "/path/segment/only"} {
		c, err := client.NewHTTPClient(server)
		assert.Nil(t, c, server)
		assert.Error(t, err, server)
	}
}

func TestInvalidSocketClientInit(t *testing.T) {
	c, err := client.NewSocketClient("no-port")
	assert.Nil(t, c)
	assert.Error(t, err)
}

func TestCRUD(t *testing.T) {
	testWithClients(t, func(t *testing.T, c *client.Client) {
		ctx := context.TODO()

		foo, err := c.Create(ctx, snippet.Input{Name: "foo", Body: []string{"x"}, Language: "go"})
		require.NoError(t, err)
		_, err = c.Create(ctx, snippet.Input{Name: "bar", Language: snippet.PlainText})
		require.NoError(t, err)
		_, err = c.Create(ctx, snippet.Input{Name: "FooBar", Language: "python"})
		require.NoError(t, err)

		got, err := c.Get(ctx, foo.ID)
		require.NoError(t, err)
		assert.Equal(t, foo.ID, got.ID)
		assert.True(t, foo.Created.Equal(got.Created))

		found, err := c.Search(ctx, "foo")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "foo", found[0].Name)
		assert.Equal(t, "FooBar", found[1].Name)

		body := []string{"x", "y"}
		require.NoError(t, c.Update(ctx, foo.ID, snippet.Patch{Body: &body}))
		got, err = c.Get(ctx, foo.ID)
		require.NoError(t, err)
		assert.Equal(t, body, got.Body)
		assert.Equal(t, "foo", got.Name)

		completions, err := c.Completions(ctx, "go")
		require.NoError(t, err)
		assert.Len(t, completions, 2)

		require.NoError(t, c.Delete(ctx, foo.ID))
		_, err = c.Get(ctx, foo.ID)
		require.Error(t, err)
		assert.True(t, client.IsNotFound(err))

		err = c.Update(ctx, foo.ID, snippet.Patch{Body: &body})
		assert.True(t, client.IsNotFound(err))

		list, err := c.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestDuplicateAndFolders(t *testing.T) {
	testWithClients(t, func(t *testing.T, c *client.Client) {
		ctx := context.TODO()
		s, err := c.Create(ctx, snippet.Input{Name: "a", Folder: "Go"})
		require.NoError(t, err)

		dup, err := c.Duplicate(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "a (Copy)", dup.Name)

		folders, err := c.Folders(ctx)
		require.NoError(t, err)
		require.Len(t, folders, 1)
		assert.Equal(t, "Go", folders[0].Name)
		assert.Len(t, folders[0].Snippets, 2)
	})
}

func TestExportImport(t *testing.T) {
	testWithClients(t, func(t *testing.T, c *client.Client) {
		ctx := context.TODO()
		_, err := c.Create(ctx, snippet.Input{Name: "a", Tags: []string{"t"}})
		require.NoError(t, err)

		data, err := c.Export(ctx, "json")
		require.NoError(t, err)

		n, err := c.Import(ctx, "json", data)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		list, err := c.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.NotEqual(t, list[0].ID, list[1].ID)
		assert.Equal(t, list[0].Tags, list[1].Tags)

		_, err = c.Import(ctx, "json", []byte("{"))
		require.Error(t, err)
	})
}

func BenchmarkSocketClientAndServerGet(b *testing.B) {
	l := zaptest.NewLogger(b)
	r := initRepo(b, l)
	c, err := client.NewSocketClient(initSocketServer(b, l, r))
	require.NoError(b, err)
	defer c.ShutDown()
	benchmarkServerAndClientGet(b, 30, c)
}

func BenchmarkWebserverClientAndServerGet(b *testing.B) {
	l := zaptest.NewLogger(b)
	server := httptest.NewServer(handler.NewHTTP(l, initRepo(b, l)))
	defer server.Close()
	c, err := client.NewHTTPClient(server.URL + pathSnippetserver)
	require.NoError(b, err)
	defer c.ShutDown()
	benchmarkServerAndClientGet(b, 30, c)
}

func benchmarkServerAndClientGet(b *testing.B, numGroups int, c *client.Client) {
	b.Helper()
	ctx := context.TODO()
	s, err := c.Create(ctx, snippet.Input{Name: "bench", Body: []string{"fmt.Println()"}})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var g errgroup.Group
		for j := 0; j < numGroups; j++ {
			g.Go(func() error {
				_, err := c.Get(ctx, s.ID)
				return err
			})
		}
		require.NoError(b, g.Wait())
	}
}

func testWithClients(t *testing.T, testFunc func(t *testing.T, c *client.Client)) {
	t.Helper()
	t.Run("http", func(t *testing.T) {
		l := zaptest.NewLogger(t)
		server := httptest.NewServer(handler.NewHTTP(l, initRepo(t, l)))
		t.Cleanup(server.Close)

		c, err := client.NewHTTPClient(server.URL + pathSnippetserver)
		require.NoError(t, err)
		t.Cleanup(c.ShutDown)
		testFunc(t, c)
	})
	t.Run("socket", func(t *testing.T) {
		l := zaptest.NewLogger(t)
		addr := initSocketServer(t, l, initRepo(t, l))

		c, err := client.NewSocketClient(addr)
		require.NoError(t, err)
		t.Cleanup(c.ShutDown)
		testFunc(t, c)
	})
}

func initRepo(tb testing.TB, l *zap.Logger) *repo.Repo {
	tb.Helper()
	storage, err := repo.NewFilesystemStorage(tb.TempDir())
	require.NoError(tb, err)
	r, err := repo.New(context.TODO(), l, repo.NewStorageBackend(storage))
	require.NoError(tb, err)
	return r
}

func initSocketServer(tb testing.TB, l *zap.Logger, r *repo.Repo) string {
	tb.Helper()
	// listen on socket
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = ln.Close() })

	h := handler.NewSocket(l, r)
	go func() {
		for {
			// this blocks until connection or error
			conn, err := ln.Accept()
			if errors.Is(err, net.ErrClosed) {
				return
			} else if err != nil {
				tb.Error("could not accept connection", err.Error())
				return
			}
			go func() {
				defer conn.Close()
				h.Serve(context.Background(), conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestConcurrentSocketClient(t *testing.T) {
	l := zaptest.NewLogger(t)
	addr := initSocketServer(t, l, initRepo(t, l))

	c, err := client.NewSocketClient(addr, client.WithConnectionPoolSize(3))
	require.NoError(t, err)
	t.Cleanup(c.ShutDown)

	ctx := context.Background()
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			s, err := c.Create(ctx, snippet.Input{Name: fmt.Sprintf("snippet %d", i), Body: []string{"x"}})
			if err != nil {
				return err
			}
			_, err = c.Get(ctx, s.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	snippets, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snippets, 50)
}

func TestSocketClientShutDown(t *testing.T) {
	l := zaptest.NewLogger(t)
	addr := initSocketServer(t, l, initRepo(t, l))

	c, err := client.NewSocketClient(addr)
	require.NoError(t, err)
	_, err = c.List(context.Background())
	require.NoError(t, err)

	c.ShutDown()
	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, client.ErrPoolDrained)
}

func TestInvalidConnectionPoolSize(t *testing.T) {
	_, err := client.NewSocketClient("127.0.0.1:8081", client.WithConnectionPoolSize(0))
	assert.Error(t, err)
}
