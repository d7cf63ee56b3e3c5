package cachestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pagecraft/internal/signature"
)

func newTestStore(t *testing.T) *Store {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	s, err := New(t.TempDir(), log)
	require.NoError(t, err)
	return s
}

func TestGet_MissingIsMiss(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get("sig-abc", "key-1")
	require.False(t, ok)
}

func TestSetThenGet_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	entry := CacheEntry{
		OutputsByKey: map[string][]string{"out": {"build/x.txt"}},
		TrackedFiles: map[string]TrackedFile{
			"content/x.txt": {Hash: "deadbeef", ModTimeMS: 1234, Origin: OriginItem},
		},
	}

	require.NoError(t, s.Set("sig-abc", "key-1", entry))

	got, ok := s.Get("sig-abc", "key-1")
	require.True(t, ok)
	require.Equal(t, entry.OutputsByKey, got.OutputsByKey)
	require.Equal(t, entry.TrackedFiles, got.TrackedFiles)
}

func TestGet_CorruptEntryIsMissNotError(t *testing.T) {
	s := newTestStore(t)
	dir := s.entryDir("sig-abc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sanitize("key-1", 200)+".json"), []byte("{not json"), 0o644))

	_, ok := s.Get("sig-abc", "key-1")
	require.False(t, ok)
}

func TestCleanExcept_RemovesOrphans(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("sig-abc", "keep", CacheEntry{}))
	require.NoError(t, s.Set("sig-abc", "drop", CacheEntry{}))

	require.NoError(t, s.CleanExcept("sig-abc", []signature.ItemKey{"keep"}))

	entries, err := os.ReadDir(s.entryDir("sig-abc"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, sanitize("keep", 200)+".json", entries[0].Name())
}

func TestCleanExcept_MissingDirIsNotError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CleanExcept("never-written", nil))
}

func TestClear_WholeCacheDirectory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("sig-a", "k", CacheEntry{}))
	require.NoError(t, s.Clear(""))

	_, ok := s.Get("sig-a", "k")
	require.False(t, ok)
}

func TestCopyToExpectedPath_CreatesParentAndCopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dst := filepath.Join(dir, "nested", "dst.txt")
	require.NoError(t, CopyToExpectedPath(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestSanitize_RulesApplied(t *testing.T) {
	require.Equal(t, "copy-transform_v2", sanitize("Copy/Transform.v2", 200))
	require.Equal(t, "a-b", sanitize("a---b", 200))
}
