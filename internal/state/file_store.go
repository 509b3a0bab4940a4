package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"

	"github.com/animus-labs/freezer/internal/domain"
)

// recordMode matches a plainly created file under the usual umask; temp
// files start out owner-only.
const recordMode os.FileMode = 0o644

// FileStore keeps each directory's record in a sibling FileName file.
type FileStore struct {
	fs billy.Filesystem
}

func NewFileStore(fs billy.Filesystem) (*FileStore, error) {
	if fs == nil {
		return nil, errors.New("filesystem is required")
	}
	return &FileStore{fs: fs}, nil
}

func (s *FileStore) Load(ctx context.Context, dir string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	f, err := s.fs.Open(path.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Record{}, ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("open record: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return domain.Record{}, fmt.Errorf("read record: %w", err)
	}
	return Unmarshal(raw)
}

// Save writes the record to a temporary file in dir and renames it over the
// record file, so readers see either the old or the new record.
func (s *FileStore) Save(ctx context.Context, dir string, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := s.fs.TempFile(dir, ".frozen-tmp-")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if ch, ok := s.fs.(billy.Change); ok {
		if err := ch.Chmod(tmpName, recordMode); err != nil && !errors.Is(err, billy.ErrNotSupported) {
			return fmt.Errorf("chmod temp record: %w", err)
		}
	}
	if err := s.fs.Rename(tmpName, path.Join(dir, FileName)); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	committed = true
	return nil
}
