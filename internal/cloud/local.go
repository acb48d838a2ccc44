package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tourneyreel/studio/internal/logging"
)

// ErrAssetNotFound is returned for names outside the store or missing files.
var ErrAssetNotFound = errors.New("asset not found")

// LocalStore keeps assets in a directory and hands out URLs under
// publicBaseURL + "/assets/". The API server serves them back with range
// support.
type LocalStore struct {
	dir           string
	publicBaseURL string
	logger        *slog.Logger
}

func NewLocalStore(dir, publicBaseURL string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset dir: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LocalStore{
		dir:           dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logging.WithComponent(logger, "assets"),
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// UploadFile copies path into the store as filename. An existing asset of
// the same name is replaced.
func (s *LocalStore) UploadFile(ctx context.Context, path, filename string) (string, error) {
	name, err := s.clean(filename)
	if err != nil {
		return "", err
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create asset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, src)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store asset: %w", err)
	}

	u := s.publicBaseURL + "/assets/" + url.PathEscape(name)
	s.logger.Info("asset stored", "filename", name)
	return u, nil
}

// Remove deletes a stored asset. Removing a missing asset succeeds.
func (s *LocalStore) Remove(ctx context.Context, filename string) error {
	name, err := s.clean(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset: %w", err)
	}
	s.logger.Info("asset removed", "filename", name)
	return nil
}

// ServeAsset writes the named asset to w, honouring Range requests.
func (s *LocalStore) ServeAsset(w http.ResponseWriter, r *http.Request, name string) error {
	name, err := s.clean(name)
	if err != nil {
		return ErrAssetNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrAssetNotFound
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrAssetNotFound
	}
	if ct := contentType(name); ct != "application/octet-stream" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}

func (s *LocalStore) clean(name string) (string, error) {
	base := filepath.Base(name)
	if name == "" || base != name || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	return base, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
