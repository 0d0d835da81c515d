package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"fireshot/models"
)

// File stores one JSON document per user, named <user id>.json, in dir.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates dir when missing.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(userID int64) string {
	return filepath.Join(f.dir, strconv.FormatInt(userID, 10)+".json")
}

func (f *File) Get(_ context.Context, userID int64) (models.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return models.UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("read user %d: %w", userID, err)
	}
	rec := models.NewUserRecord()
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.UserRecord{}, fmt.Errorf("decode user %d: %w", userID, err)
	}
	if rec.Accounts == nil {
		rec.Accounts = map[int64]models.AccountDescriptor{}
	}
	return rec, nil
}

// Put writes to a temp file and renames it over the old record.
func (f *File) Put(_ context.Context, userID int64, rec models.UserRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user %d: %w", userID, err)
	}
	tmp := f.path(userID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	if err := os.Rename(tmp, f.path(userID)); err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	return nil
}

func (f *File) Exists(_ context.Context, userID int64) (bool, error) {
	_, err := os.Stat(f.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
