package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

func useFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fake
}

func newStore(t *testing.T, retain int) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "master.json")
	return NewFileStore(Options{Path: path, Retain: retain, LockTimeout: 300 * time.Millisecond}, zap.NewNop()), dir
}

func collectionOf(t *testing.T, ids ...string) *domain.Collection {
	t.Helper()
	items := make([]*domain.Announcement, 0, len(ids))
	for i, id := range ids {
		a := &domain.Announcement{ID: id, Title: "公告 " + id, PublishDate: "2025/05/20"}
		require.NoError(t, a.Append(domain.VersionRecord{
			ScrapedAt:   time.Date(2025, 5, 20, 10, i, 0, 0, domain.Taipei),
			ContentHTML: "<p>內容</p>",
			ContentText: "內容",
			ContentHash: "md5:0",
		}))
		items = append(items, a)
	}
	c, err := domain.NewCollection(items...)
	require.NoError(t, err)
	return c
}

func ids(c *domain.Collection) []string {
	var out []string
	for _, a := range c.All() {
		out = append(out, a.ID)
	}
	return out
}

func backupNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s, _ := newStore(t, 0)
	c, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestLoad_CorruptFile(t *testing.T) {
	s, _ := newStore(t, 0)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"id": "1",`), 0o644))

	_, err := s.Load()
	require.ErrorIs(t, err, domain.ErrCorruptState)
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestLoad_DuplicateIDsAreCorrupt(t *testing.T) {
	s, _ := newStore(t, 0)
	doc := `[{"id":"1","title":"a","version_history":[]},{"id":"1","title":"b","version_history":[]}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o644))

	_, err := s.Load()
	require.ErrorIs(t, err, domain.ErrCorruptState)
}

func TestSave_RoundTripAndBackups(t *testing.T) {
	fake := useFakeClock(t)
	s, dir := newStore(t, 0)

	require.NoError(t, s.Save(collectionOf(t, "1")))
	assert.Empty(t, backupNames(t, dir), "first save has nothing to back up")

	require.NoError(t, s.Save(collectionOf(t, "1", "2")))
	assert.Equal(t, []string{"master_backup_20250520_170000.json"}, backupNames(t, dir))

	fake.Advance(time.Second)
	require.NoError(t, s.Save(collectionOf(t, "1", "2", "3")))
	assert.Equal(t, []string{
		"master_backup_20250520_170000.json",
		"master_backup_20250520_170001.json",
	}, backupNames(t, dir))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))

	prev, name, err := s.Recover()
	require.NoError(t, err)
	assert.Equal(t, "master_backup_20250520_170001.json", name)
	assert.Equal(t, []string{"1", "2"}, ids(prev))
}

func TestSave_SameSecondBackupsDoNotCollide(t *testing.T) {
	useFakeClock(t)
	s, dir := newStore(t, 0)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(collectionOf(t, "1")))
	}
	assert.Equal(t, []string{
		"master_backup_20250520_170000.json",
		"master_backup_20250520_170000_1.json",
		"master_backup_20250520_170000_2.json",
	}, backupNames(t, dir))
}

func TestSave_PrunesToRetain(t *testing.T) {
	fake := useFakeClock(t)
	s, dir := newStore(t, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(collectionOf(t, "1")))
		fake.Advance(time.Minute)
	}
	assert.Equal(t, []string{
		"master_backup_20250520_170300.json",
		"master_backup_20250520_170400.json",
	}, backupNames(t, dir))
}

func TestSave_PrettyOutput(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(Options{Path: filepath.Join(dir, "master.json"), Pretty: true}, zap.NewNop())
	require.NoError(t, s.Save(collectionOf(t, "1")))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"1\"")
}

func TestSave_InterruptedWriteKeepsPreviousDocument(t *testing.T) {
	s, _ := newStore(t, 0)
	require.NoError(t, s.Save(collectionOf(t, "1")))

	pf, err := renameio.NewPendingFile(s.Path())
	require.NoError(t, err)
	_, err = pf.Write([]byte(`[{"id": "2", "ti`))
	require.NoError(t, err)
	require.NoError(t, pf.Cleanup())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestRecover_SkipsInvalidBackups(t *testing.T) {
	fake := useFakeClock(t)
	s, dir := newStore(t, 0)

	require.NoError(t, s.Save(collectionOf(t, "1")))
	require.NoError(t, s.Save(collectionOf(t, "1", "2")))
	fake.Advance(time.Hour)
	require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0o644))
	require.NoError(t, s.Save(collectionOf(t, "9")))

	// newest backup holds the garbage document
	names := backupNames(t, dir)
	require.Len(t, names, 2)
	assert.Equal(t, "master_backup_20250520_180000.json", names[1])

	c, name, err := s.Recover()
	require.NoError(t, err)
	assert.Equal(t, "master_backup_20250520_170000.json", name)
	assert.Equal(t, []string{"1"}, ids(c))
}

func TestRecover_NoBackups(t *testing.T) {
	s, _ := newStore(t, 0)
	_, _, err := s.Recover()
	require.ErrorIs(t, err, ErrNoBackup)
}

func TestLock_Contention(t *testing.T) {
	s, _ := newStore(t, 0)

	unlock, err := s.Lock(context.Background())
	require.NoError(t, err)

	other := flock.New(s.Path() + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, locked, "second holder must be refused")

	require.NoError(t, unlock())

	locked, err = other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = other.Unlock() })

	_, err = s.Lock(context.Background())
	require.ErrorIs(t, err, ErrLocked)
}

func TestBackupLess(t *testing.T) {
	assert.True(t, backupLess("master_backup_20250520_170000.json", "master_backup_20250520_170000_1.json"))
	assert.True(t, backupLess("master_backup_20250520_170000_2.json", "master_backup_20250520_170000_10.json"))
	assert.True(t, backupLess("master_backup_20250520_170000_10.json", "master_backup_20250520_170001.json"))
}
