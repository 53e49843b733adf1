package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tanq16/rangefetch/internal/utils"
)

type Options struct {
	TempDirName string
	// FreeSpace reports available bytes for a directory; defaults to the OS query.
	FreeSpace func(dir string) (uint64, error)
}

// Store stages downloads in <dir>/<TempDirName>/<base>.part and promotes them by rename.
type Store struct {
	tempDirName string
	freeSpace   func(dir string) (uint64, error)
}

func New(opts Options) *Store {
	if opts.TempDirName == "" {
		opts.TempDirName = utils.TempDirName
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = diskFreeSpace
	}
	return &Store{tempDirName: opts.TempDirName, freeSpace: opts.FreeSpace}
}

func (s *Store) tempDir(dest string) string {
	return filepath.Join(filepath.Dir(dest), s.tempDirName)
}

func (s *Store) TempPath(dest string) string {
	return filepath.Join(s.tempDir(dest), filepath.Base(dest)+utils.PartSuffix)
}

// Prepare opens the temp file for dest read-write, creating directories and the
// file when absent. With downloaded == 0 any existing content is dropped, and a
// known total fixes the file size exactly. total <= 0 means the size is unknown
// and skips the space check.
func (s *Store) Prepare(dest string, total, downloaded int64) (*os.File, error) {
	log := utils.GetLogger("filestore")
	tempDir := s.tempDir(dest)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, &utils.LocalError{Op: "mkdir", Path: tempDir, Err: err}
	}
	if total > 0 {
		need := total - downloaded
		free, err := s.freeSpace(tempDir)
		if err != nil {
			return nil, &utils.LocalError{Op: "statfs", Path: tempDir, Err: err}
		}
		if need > 0 && uint64(need) > free {
			return nil, &utils.LocalError{
				Op:   "prepare",
				Path: dest,
				Err:  fmt.Errorf("%w: need %s, have %s", utils.ErrInsufficientSpace, utils.FormatBytes(uint64(need)), utils.FormatBytes(free)),
			}
		}
	}
	tempPath := s.TempPath(dest)
	flags := os.O_RDWR | os.O_CREATE
	if downloaded == 0 {
		// a leftover partial from another run is not ours to resume
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(tempPath, flags, 0644)
	if err != nil {
		return nil, &utils.LocalError{Op: "open", Path: tempPath, Err: err}
	}
	if total > 0 {
		info, err := f.Stat()
		if err == nil && info.Size() != total {
			err = f.Truncate(total)
		}
		if err != nil {
			f.Close()
			return nil, &utils.LocalError{Op: "allocate", Path: tempPath, Err: err}
		}
	}
	log.Debug().Str("op", "filestore/prepare").Str("path", tempPath).Int64("total", total).Int64("offset", downloaded).Msg("Temp file ready")
	return f, nil
}

// Finalize renames the temp file onto dest. The temp file is left in place on failure.
func (s *Store) Finalize(dest string) error {
	tempPath := s.TempPath(dest)
	if err := os.Rename(tempPath, dest); err != nil {
		return &utils.LocalError{Op: "rename", Path: tempPath, Err: err}
	}
	s.removeTempDirIfEmpty(dest)
	return nil
}

func (s *Store) DiscardPartial(dest string) error {
	tempPath := s.TempPath(dest)
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &utils.LocalError{Op: "remove", Path: tempPath, Err: err}
	}
	s.removeTempDirIfEmpty(dest)
	return nil
}

// Remove deletes both the finished file and any partial for dest.
func (s *Store) Remove(dest string) error {
	if err := s.DiscardPartial(dest); err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &utils.LocalError{Op: "remove", Path: dest, Err: err}
	}
	return nil
}

// Clean removes leftover partial files in dir. With a file path only the
// partials belonging to that file are removed.
func (s *Store) Clean(path string) error {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		tempDir := filepath.Join(path, s.tempDirName)
		if err := os.RemoveAll(tempDir); err != nil {
			return &utils.LocalError{Op: "clean", Path: tempDir, Err: err}
		}
		return nil
	}
	tempDir := s.tempDir(path)
	files, err := os.ReadDir(tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &utils.LocalError{Op: "clean", Path: tempDir, Err: err}
	}
	partPrefix := filepath.Base(path) + utils.PartSuffix
	for _, file := range files {
		if strings.HasPrefix(file.Name(), partPrefix) {
			if err := os.RemoveAll(filepath.Join(tempDir, file.Name())); err != nil {
				return &utils.LocalError{Op: "clean", Path: tempDir, Err: err}
			}
		}
	}
	s.removeTempDirIfEmpty(path)
	return nil
}

func (s *Store) removeTempDirIfEmpty(dest string) {
	tempDir := s.tempDir(dest)
	if files, err := os.ReadDir(tempDir); err == nil && len(files) == 0 {
		os.Remove(tempDir)
	}
}
