// Package uploads keeps transient per-user audio files.
//
// Expiry is lazy: files older than the configured max age are removed from a
// user's folder when that user uploads again. There is no background sweep,
// so an idle user's folder keeps its last files until the next upload or
// until the account is deleted.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidUser = errors.New("invalid user name")

type Store struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func New(dir string, maxAge time.Duration) *Store {
	return &Store{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Save writes r to a fresh file in user's folder and returns its path.
func (s *Store) Save(user string, r io.Reader) (string, error) {
	const op = "uploads.Save"

	dir, err := s.userDir(user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.sweep(dir); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	path := filepath.Join(dir, uuid.NewString()+".wav")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return path, nil
}

func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("uploads.Remove: %w", err)
	}

	return nil
}

// Purge deletes user's whole folder.
func (s *Store) Purge(user string) error {
	const op = "uploads.Purge"

	dir, err := s.userDir(user)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// sweep removes regular files in dir older than maxAge and returns how many
// were removed.
func (s *Store) sweep(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

func (s *Store) userDir(user string) (string, error) {
	name := sanitize(user)
	if name == "" {
		return "", ErrInvalidUser
	}

	return filepath.Join(s.dir, name), nil
}

func sanitize(user string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '@' || r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, user)

	if strings.Trim(name, ".") == "" {
		return ""
	}

	return name
}
