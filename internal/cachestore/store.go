// Package cachestore persists and retrieves cache entries on disk, keyed
// by (content signature, item key), and prunes orphans (spec §4.4).
//
// Writes are atomic and durable: a temp file is written, fsynced, and
// renamed into place, so a crash never leaves partial JSON behind.
package cachestore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"pagecraft/internal/errs"
	"pagecraft/internal/signature"
)

// entryCacheSize bounds the in-memory front-end; it is a pure read-through
// optimisation and never changes observable behaviour.
const entryCacheSize = 4096

// Store is the on-disk cache: <cacheDir>/<sanitised-signature>/<sanitised-item-key>.json.
type Store struct {
	rootDir string
	log     *logrus.Logger
	front   *lru.Cache[string, CacheEntry]
}

// New constructs a Store rooted at rootDir.
func New(rootDir string, log *logrus.Logger) (*Store, error) {
	front, err := lru.New[string, CacheEntry](entryCacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{rootDir: rootDir, log: log, front: front}, nil
}

func frontKey(sig signature.ContentSignature, key signature.ItemKey) string {
	return string(sig) + "\x00" + string(key)
}

func (s *Store) entryDir(sig signature.ContentSignature) string {
	return filepath.Join(s.rootDir, sanitize(string(sig), 120))
}

func (s *Store) entryPath(sig signature.ContentSignature, key signature.ItemKey) string {
	return filepath.Join(s.entryDir(sig), sanitize(string(key), 200)+".json")
}

// Get returns the stored entry for (sig, key), or (CacheEntry{}, false) if
// absent, unreadable, or unparseable. Corrupt entries are a miss, never an
// error (spec §7).
func (s *Store) Get(sig signature.ContentSignature, key signature.ItemKey) (CacheEntry, bool) {
	if entry, ok := s.front.Get(frontKey(sig, key)); ok {
		return entry, true
	}

	path := s.entryPath(sig, key)
	data, err := os.ReadFile(path)
	if err != nil {
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.WithFields(logrus.Fields{"path": path, "error": err}).Debug("cache: unparseable entry, treating as miss")
		return CacheEntry{}, false
	}

	s.front.Add(frontKey(sig, key), entry)
	return entry, true
}

// Set persists entry under (sig, key), creating parent directories as
// needed. Write failures are fatal (spec §7).
func (s *Store) Set(sig signature.ContentSignature, key signature.ItemKey, entry CacheEntry) error {
	entry.ItemKey = string(key)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return errs.NewCacheError("set", fmt.Errorf("marshalling entry: %w", err))
	}
	data = append(data, '\n')

	path := s.entryPath(sig, key)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return errs.NewCacheError("set", err)
	}

	s.front.Add(frontKey(sig, key), entry)
	return nil
}

// CleanExcept deletes every file in <cacheDir>/<sig>/ whose basename is not
// in {sanitised(k) + ".json"}. Silently succeeds if the directory does not
// exist (spec §4.4; invariant I8).
func (s *Store) CleanExcept(sig signature.ContentSignature, keepKeys []signature.ItemKey) error {
	dir := s.entryDir(sig)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewCacheError("clean_except", err)
	}

	keep := make(map[string]struct{}, len(keepKeys))
	for _, k := range keepKeys {
		keep[sanitize(string(k), 200)+".json"] = struct{}{}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return errs.NewCacheError("clean_except", err)
		}
	}

	// Drop pruned entries from the in-memory front too, so Get cannot
	// return an entry whose file was just deleted.
	prefix := string(sig) + "\x00"
	for _, fk := range s.front.Keys() {
		if !strings.HasPrefix(fk, prefix) {
			continue
		}
		if _, ok := keep[sanitize(strings.TrimPrefix(fk, prefix), 200)+".json"]; !ok {
			s.front.Remove(fk)
		}
	}
	return nil
}

// Clear removes a signature's subtree, or the whole cache directory when
// sig is empty.
func (s *Store) Clear(sig signature.ContentSignature) error {
	s.front.Purge()
	target := s.rootDir
	if sig != "" {
		target = s.entryDir(sig)
	}
	if err := os.RemoveAll(target); err != nil {
		return errs.NewCacheError("clear", err)
	}
	return nil
}

// CopyToExpectedPath copies the cached artifact at src to dst, creating
// dst's parent directory as needed, so a downstream consumer expecting a
// different base directory finds it there.
func CopyToExpectedPath(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.NewCacheError("copy_to_expected_path", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return errs.NewCacheError("copy_to_expected_path", err)
	}
	defer in.Close()

	if err := writeFileAtomicFromReader(dst, in, 0o644); err != nil {
		return errs.NewCacheError("copy_to_expected_path", err)
	}
	return nil
}

func writeFileAtomicFromReader(path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true

	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}

// sanitize lowercases, replaces path separators with "-", replaces dots
// with "_", drops any other character outside [a-zA-Z0-9-_], collapses
// repeated hyphens, and bounds the result to maxLen (spec §4.4).
func sanitize(s string, maxLen int) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, string(filepath.Separator), "-")
	s = strings.ReplaceAll(s, ".", "_")

	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r == '-':
			if !lastHyphen {
				b.WriteByte('-')
			}
			lastHyphen = true
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			// drop
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "entry"
	}
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
