// Package fetch resolves data-server items to local files.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrNoFile        = errors.New("no file to load, check the selected item")
	ErrMultipleFiles = errors.New("item holds more than one file, load a compressed archive instead")
	ErrBadCacheMode  = errors.New("unknown cache mode")
)

// CacheMode decides how long downloaded files are kept.
type CacheMode string

const (
	// CacheNo removes each file once it has been decoded.
	CacheNo CacheMode = "no"
	// CacheSession keeps files until the fetcher is closed.
	CacheSession CacheMode = "session"
	// CachePermanent keeps files in the configured directory across runs.
	CachePermanent CacheMode = "permanent"
)

func ParseCacheMode(s string) (CacheMode, error) {
	switch CacheMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CacheNo:
		return CacheNo, nil
	case CacheSession:
		return CacheSession, nil
	case CachePermanent:
		return CachePermanent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadCacheMode, s)
	}
}

// File is one file record of a data-server item.
type File struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	ItemID string `json:"itemId"`
	Size   int64  `json:"size"`
}

type Options struct {
	// APIURL is the data server root, e.g. http://host/api/v1.
	APIURL  string
	TempDir string
	Mode    CacheMode
	Timeout time.Duration
	Logger  *zap.Logger
}

// Fetcher downloads item files on behalf of one session. It carries the
// session's bearer token, so each session gets its own.
type Fetcher struct {
	api     *url.URL
	client  *http.Client
	mode    CacheMode
	dir     string
	ownsDir bool
	paths   *cache.Cache
	log     *zap.Logger
}

func New(ctx context.Context, opts Options, token string) (*Fetcher, error) {
	api, err := url.Parse(strings.TrimRight(opts.APIURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid data api url: %w", err)
	}
	if opts.Mode == "" {
		opts.Mode = CacheNo
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	f := &Fetcher{
		api:   api,
		mode:  opts.Mode,
		paths: cache.New(cache.NoExpiration, 0),
		log:   log,
	}

	switch opts.Mode {
	case CachePermanent:
		if opts.TempDir == "" {
			return nil, errors.New("a directory must be provided when the cache mode is permanent")
		}
		if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		f.dir = opts.TempDir
	case CacheNo, CacheSession:
		dir, err := os.MkdirTemp(opts.TempDir, "medviewer-")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		f.dir = dir
		f.ownsDir = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadCacheMode, opts.Mode)
	}

	if token != "" {
		f.client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	} else {
		f.client = &http.Client{}
	}
	if opts.Timeout > 0 {
		f.client.Timeout = opts.Timeout
	}
	return f, nil
}

func (f *Fetcher) Dir() string     { return f.dir }
func (f *Fetcher) Mode() CacheMode { return f.mode }

// ItemFiles lists the files attached to itemID.
func (f *Fetcher) ItemFiles(ctx context.Context, itemID string) ([]File, error) {
	resp, err := f.get(ctx, "item", itemID, "files")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var files []File
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode file list of item %s: %w", itemID, err)
	}
	return files, nil
}

// ItemFile returns the single file of itemID.
func (f *Fetcher) ItemFile(ctx context.Context, itemID string) (File, error) {
	files, err := f.ItemFiles(ctx, itemID)
	if err != nil {
		return File{}, err
	}
	switch len(files) {
	case 0:
		return File{}, ErrNoFile
	case 1:
		return files[0], nil
	default:
		return File{}, ErrMultipleFiles
	}
}

// Fetch makes the single file of itemID available locally. The returned
// release func must be called once the file has been read.
func (f *Fetcher) Fetch(ctx context.Context, itemID string) (string, func(), error) {
	file, err := f.ItemFile(ctx, itemID)
	if err != nil {
		return "", nil, err
	}
	path, err := f.FetchFile(ctx, file)
	if err != nil {
		return "", nil, err
	}
	return path, func() { f.release(file, path) }, nil
}

// FetchFile downloads file to <dir>/<fileId>/<name> unless a cached copy exists.
func (f *Fetcher) FetchFile(ctx context.Context, file File) (string, error) {
	if file.ID == "" || file.Name == "" {
		return "", fmt.Errorf("file record is missing id or name")
	}
	path := filepath.Join(f.dir, file.ID, filepath.Base(file.Name))

	if f.mode == CacheSession {
		if _, ok := f.paths.Get(file.ID); ok && exists(path) {
			f.log.Debug("file served from session cache", zap.String("path", path))
			return path, nil
		}
	}
	if f.mode == CachePermanent && exists(path) {
		f.log.Debug("file served from permanent cache", zap.String("path", path))
		return path, nil
	}

	if err := f.download(ctx, file, path); err != nil {
		return "", err
	}
	if f.mode == CacheSession {
		f.paths.Set(file.ID, path, cache.NoExpiration)
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, file File, path string) error {
	f.log.Info("downloading file", zap.String("name", file.Name), zap.String("path", path))

	resp, err := f.get(ctx, "file", file.ID, "download")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".part-*")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("download %s: %w", file.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *Fetcher) get(ctx context.Context, elem ...string) (*http.Response, error) {
	ref := strings.Join(elem, "/")
	target := f.api.JoinPath(elem...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", ref, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Path: ref, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (f *Fetcher) release(file File, path string) {
	if f.mode != CacheNo {
		return
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		f.log.Warn("failed to remove downloaded file", zap.String("path", path), zap.Error(err))
	}
	f.paths.Delete(file.ID)
}

// Close drops the session cache. Permanent caches are left on disk.
func (f *Fetcher) Close() error {
	f.paths.Flush()
	if !f.ownsDir {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// StatusError is returned for non-200 answers of the data server.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("data server answered %d for %s", e.Code, e.Path)
	}
	return fmt.Sprintf("data server answered %d for %s: %s", e.Code, e.Path, e.Body)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
