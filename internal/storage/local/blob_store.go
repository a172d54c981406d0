// Package local implements a filesystem blob store for report exports.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory of all exported objects.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes objects below a base directory. Objects appear atomically: readers such as
// the scoring agent never observe a half-written report.
type BlobStore struct {
	root string
}

// New resolves BaseDir to an absolute path and creates it when missing.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory %s is not a directory", root)
	}
	return &BlobStore{root: root}, nil
}

// Root returns the absolute base directory.
func (s *BlobStore) Root() string {
	return s.root
}

// PutObject stores data under name and returns its file:// URI. Names are slash separated and
// must stay inside the base directory. An existing object is never replaced;
// crawler.ErrObjectExists is returned instead.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	rel := filepath.FromSlash(strings.TrimSpace(name))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	target := filepath.Join(s.root, rel)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := publish(dir, target, data); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String(), nil
}

// publish writes data to a temporary file and hard-links it to target. Linking fails when
// target exists, which makes the no-overwrite check and the write a single step.
func publish(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", target, crawler.ErrObjectExists)
		}
		return fmt.Errorf("publish %s: %w", target, err)
	}
	return nil
}
