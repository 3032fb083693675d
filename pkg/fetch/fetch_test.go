package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataServer struct {
	*httptest.Server
	files     map[string][]File
	downloads atomic.Int32
	authSeen  atomic.Value
}

func newDataServer(t *testing.T) *dataServer {
	t.Helper()
	ds := &dataServer{files: map[string][]File{
		"one":   {{ID: "f1", Name: "head.nii.gz", ItemID: "one"}},
		"empty": {},
		"two":   {{ID: "f2", Name: "a.stl"}, {ID: "f3", Name: "b.stl"}},
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/item/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		ds.authSeen.Store(r.Header.Get("Authorization"))
		files, ok := ds.files[r.PathValue("id")]
		if !ok {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(files)
	})
	mux.HandleFunc("/api/v1/file/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		ds.downloads.Add(1)
		w.Write([]byte("payload-" + r.PathValue("id")))
	})
	ds.Server = httptest.NewServer(mux)
	t.Cleanup(ds.Close)
	return ds
}

func newFetcher(t *testing.T, ds *dataServer, mode CacheMode, dir string) *Fetcher {
	t.Helper()
	f, err := New(context.Background(), Options{APIURL: ds.URL + "/api/v1", TempDir: dir, Mode: mode}, "secret")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseCacheMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CacheMode
		wantErr bool
	}{
		{"", CacheNo, false},
		{"No", CacheNo, false},
		{"session", CacheSession, false},
		{" Permanent ", CachePermanent, false},
		{"forever", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCacheMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadCacheMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemFile(t *testing.T) {
	ds := newDataServer(t)
	f := newFetcher(t, ds, CacheNo, t.TempDir())
	ctx := context.Background()

	file, err := f.ItemFile(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "f1", file.ID)
	assert.Equal(t, "Bearer secret", ds.authSeen.Load())

	_, err = f.ItemFile(ctx, "empty")
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = f.ItemFile(ctx, "two")
	assert.ErrorIs(t, err, ErrMultipleFiles)

	_, err = f.ItemFile(ctx, "missing")
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
}

func TestFetchWithoutCache(t *testing.T) {
	ds := newDataServer(t)
	f := newFetcher(t, ds, CacheNo, t.TempDir())

	path, release, err := f.Fetch(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.Dir(), "f1", "head.nii.gz"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload-f1", string(raw))

	release()
	assert.NoFileExists(t, path)

	_, release, err = f.Fetch(context.Background(), "one")
	require.NoError(t, err)
	release()
	assert.EqualValues(t, 2, ds.downloads.Load())
}

func TestFetchSessionCache(t *testing.T) {
	ds := newDataServer(t)
	f := newFetcher(t, ds, CacheSession, t.TempDir())
	ctx := context.Background()

	first, release, err := f.Fetch(ctx, "one")
	require.NoError(t, err)
	release()
	second, release, err := f.Fetch(ctx, "one")
	require.NoError(t, err)
	release()

	assert.Equal(t, first, second)
	assert.FileExists(t, second)
	assert.EqualValues(t, 1, ds.downloads.Load())

	require.NoError(t, f.Close())
	assert.NoDirExists(t, f.Dir())
}

func TestFetchPermanentCache(t *testing.T) {
	ds := newDataServer(t)
	dir := filepath.Join(t.TempDir(), "cache")

	f := newFetcher(t, ds, CachePermanent, dir)
	path, release, err := f.Fetch(context.Background(), "one")
	require.NoError(t, err)
	release()
	require.NoError(t, f.Close())
	assert.FileExists(t, path)

	again := newFetcher(t, ds, CachePermanent, dir)
	path2, release, err := again.Fetch(context.Background(), "one")
	require.NoError(t, err)
	release()
	assert.Equal(t, path, path2)
	assert.EqualValues(t, 1, ds.downloads.Load())
}

func TestPermanentNeedsDir(t *testing.T) {
	_, err := New(context.Background(), Options{APIURL: "http://localhost", Mode: CachePermanent}, "")
	assert.Error(t, err)
}
