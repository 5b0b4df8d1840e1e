// Package storage persists the announcement collection as a single JSON
// document. Writes are atomic and each write first copies the current
// document into a rolling set of timestamped backups.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

const (
	backupPrefix   = "master_backup_"
	backupSuffix   = ".json"
	backupLayout   = "20060102_150405"
	lockRetryDelay = 100 * time.Millisecond
	filePerm       = 0o644
)

var (
	// ErrLocked is returned when another process holds the store lock.
	ErrLocked = errors.New("store is locked by another process")
	// ErrNoBackup is returned by Recover when no backup parses.
	ErrNoBackup = errors.New("no usable backup")
)

// Options configures a FileStore.
type Options struct {
	Path        string
	BackupDir   string // defaults to "<dir of Path>/backups"
	Retain      int    // backups kept after each save; <= 0 keeps all
	Pretty      bool
	LockTimeout time.Duration
}

// FileStore is the single-writer JSON document store.
type FileStore struct {
	opts   Options
	lock   *flock.Flock
	logger *zap.Logger
}

// NewFileStore creates a store; nothing touches the filesystem until the
// first call.
func NewFileStore(opts Options, logger *zap.Logger) *FileStore {
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(opts.Path), "backups")
	}
	return &FileStore{
		opts:   opts,
		lock:   flock.New(opts.Path + ".lock"),
		logger: logger,
	}
}

// Path returns the document path.
func (s *FileStore) Path() string { return s.opts.Path }

// Lock acquires the cross-process write lock, retrying until LockTimeout or
// ctx expires. The returned func releases it.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if s.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LockTimeout)
		defer cancel()
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	return s.lock.Unlock, nil
}

// Load reads the document. A missing document is an empty collection; an
// unreadable or invalid one wraps domain.ErrCorruptState.
func (s *FileStore) Load() (*domain.Collection, error) {
	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewCollection()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrCorruptState, s.opts.Path, err)
	}
	return decode(data, s.opts.Path)
}

// CheckReadiness reports whether the document can be loaded.
func (s *FileStore) CheckReadiness(_ context.Context) error {
	_, err := s.Load()
	return err
}

// Save backs up the current document and atomically replaces it with c.
// On any failure the previous document is left as it was.
func (s *FileStore) Save(c *domain.Collection) error {
	data, err := s.encode(c)
	if err != nil {
		return err
	}

	if err := s.backup(); err != nil {
		return err
	}
	if err := renameio.WriteFile(s.opts.Path, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", s.opts.Path, err)
	}
	s.logger.Debug("store saved", zap.String("path", s.opts.Path), zap.Int("announcements", c.Len()))
	return nil
}

// Recover loads the newest backup that parses and returns it with the backup
// file name.
func (s *FileStore) Recover() (*domain.Collection, string, error) {
	names, err := s.backups()
	if err != nil {
		return nil, "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(s.opts.BackupDir, names[i])
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("backup unreadable", zap.String("backup", names[i]), zap.Error(err))
			continue
		}
		c, err := decode(data, path)
		if err != nil {
			s.logger.Warn("backup invalid", zap.String("backup", names[i]), zap.Error(err))
			continue
		}
		return c, names[i], nil
	}
	return nil, "", ErrNoBackup
}

func (s *FileStore) encode(c *domain.Collection) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if s.opts.Pretty {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = json.Marshal(c)
	}
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(data []byte, path string) (*domain.Collection, error) {
	c := new(domain.Collection)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrCorruptState, path, err)
	}
	return c, nil
}

// backup copies the current document (if any) into the backup dir, then
// prunes the oldest copies beyond Retain.
func (s *FileStore) backup() error {
	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read for backup: %w", err)
	}
	if err := os.MkdirAll(s.opts.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name, err := s.backupName()
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(s.opts.BackupDir, name), data, filePerm); err != nil {
		return fmt.Errorf("write backup %s: %w", name, err)
	}
	s.logger.Debug("backup written", zap.String("backup", name))
	return s.prune()
}

func (s *FileStore) backupName() (string, error) {
	stamp := domain.Now().Format(backupLayout)
	name := backupPrefix + stamp + backupSuffix
	for n := 1; ; n++ {
		_, err := os.Stat(filepath.Join(s.opts.BackupDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat backup: %w", err)
		}
		name = fmt.Sprintf("%s%s_%d%s", backupPrefix, stamp, n, backupSuffix)
	}
}

func (s *FileStore) prune() error {
	if s.opts.Retain <= 0 {
		return nil
	}
	names, err := s.backups()
	if err != nil {
		return err
	}
	for len(names) > s.opts.Retain {
		if err := os.Remove(filepath.Join(s.opts.BackupDir, names[0])); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("prune backup %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}

// backups lists backup file names oldest first.
func (s *FileStore) backups() ([]string, error) {
	entries, err := os.ReadDir(s.opts.BackupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, backupPrefix) && strings.HasSuffix(n, backupSuffix) {
			names = append(names, n)
		}
	}
	sort.Slice(names, func(i, j int) bool { return backupLess(names[i], names[j]) })
	return names, nil
}

// backupLess orders by timestamp, then by collision suffix.
func backupLess(a, b string) bool {
	sa, na := splitBackupName(a)
	sb, nb := splitBackupName(b)
	if sa != sb {
		return sa < sb
	}
	return na < nb
}

func splitBackupName(name string) (string, int) {
	core := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	if len(core) <= len(backupLayout) {
		return core, 0
	}
	var n int
	if _, err := fmt.Sscanf(core[len(backupLayout):], "_%d", &n); err != nil {
		return core, 0
	}
	return core[:len(backupLayout)], n
}
