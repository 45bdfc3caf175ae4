// Package body persists note text outside the database.
//
// A locator is an opaque, store-relative path handed out by Write. Readers only
// ever see complete bodies: content lands in a temporary file that is renamed
// into place once fully written.
package body

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	hexAlphabet = "0123456789abcdef"
	segmentLen  = 32
	depth       = 3
)

var locatorRe = regexp.MustCompile(`^[0-9a-f]{32}/[0-9a-f]{32}/[0-9a-f]{32}$`)

// ErrInvalidLocator is returned for locators this store could not have issued.
var ErrInvalidLocator = errors.New("invalid body locator")

// Store is an external content store for note bodies.
type Store interface {
	Write(ctx context.Context, text string) (string, error)
	Read(ctx context.Context, locator string) (string, error)
	Remove(ctx context.Context, locator string) error
}

// FileStore keeps each body in its own file three random directories deep
// under root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create data path: %w", err)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Write(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	segments := make([]string, depth)
	for i := range segments {
		seg, err := gonanoid.Generate(hexAlphabet, segmentLen)
		if err != nil {
			return "", fmt.Errorf("generate locator: %w", err)
		}
		segments[i] = seg
	}
	locator := strings.Join(segments, "/")
	path := s.path(locator)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create body dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".body-*")
	if err != nil {
		return "", fmt.Errorf("create body file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write body: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("sync body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close body: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish body: %w", err)
	}
	return locator, nil
}

func (s *FileStore) Read(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !locatorRe.MatchString(locator) {
		return "", ErrInvalidLocator
	}
	b, err := os.ReadFile(s.path(locator))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// Remove deletes the body and any directories left empty by it. A body that
// is already gone is not an error, so reclaiming can be retried freely.
func (s *FileStore) Remove(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !locatorRe.MatchString(locator) {
		return ErrInvalidLocator
	}

	path := s.path(locator)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove body: %w", err)
	}

	for dir := filepath.Dir(path); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			// Not empty, or already pruned by someone else.
			break
		}
	}
	return nil
}

func (s *FileStore) path(locator string) string {
	return filepath.Join(s.root, filepath.FromSlash(locator))
}
