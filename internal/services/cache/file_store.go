package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/utils"
)

const (
	fileStoreExt = ".json"
	tempPrefix   = ".tmp-"

	// staleTempAge is how long an uncommitted temp file may sit before Sweep
	// treats it as left behind by an interrupted write
	staleTempAge = 10 * time.Minute
)

// FileStore is the durable tier: one JSON envelope per key in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, models.NewValidationError("durable cache directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create durable cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, EncodeKey(key)+fileStoreExt)
}

func (s *FileStore) Layer() models.CacheLayer { return models.CacheLayerDurable }

func (s *FileStore) Get(ctx context.Context, key string) (*models.CacheEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path(key)) // #nosec G304 - name is produced by EncodeKey
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read durable entry: %w", err)
	}

	var env models.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode durable entry: %w", err)
	}
	return &env, nil
}

// Set writes through a temp file and rename so readers never see a torn entry
func (s *FileStore) Set(ctx context.Context, key string, env *models.CacheEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := utils.MarshalJSON(env)
	if err != nil {
		return fmt.Errorf("encode durable entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create durable temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write durable entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close durable entry: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit durable entry: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove durable entry: %w", err)
	}
	return nil
}

// Sweep removes expired and unreadable entries along with stale temp files.
// It stops early when ctx is cancelled and reports what it removed so far.
func (s *FileStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list durable cache dir: %w", err)
	}

	removed := 0
	for _, de := range dirEntries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		name := de.Name()
		if de.IsDir() {
			continue
		}
		if strings.HasPrefix(name, tempPrefix) {
			if s.removeStaleTemp(de, now) {
				removed++
			}
			continue
		}
		if !strings.HasSuffix(name, fileStoreExt) {
			continue
		}

		full := filepath.Join(s.dir, name)
		raw, err := os.ReadFile(full) // #nosec G304 - entry listed from our own directory
		if err != nil {
			continue
		}

		var env models.CacheEnvelope
		if json.Unmarshal(raw, &env) != nil || env.ExpiredAt(now) {
			if err := os.Remove(full); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *FileStore) removeStaleTemp(de fs.DirEntry, now time.Time) bool {
	info, err := de.Info()
	if err != nil || now.Sub(info.ModTime()) < staleTempAge {
		return false
	}
	return os.Remove(filepath.Join(s.dir, de.Name())) == nil
}
