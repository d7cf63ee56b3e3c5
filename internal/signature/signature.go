// Package signature computes the pipeline's content-addressed identities:
// a node's ContentSignature (stable across output-config changes), an
// ItemKey for a processed item, and the upstream-set signature used to
// detect changes in the *set* of paths an upstream output resolves to.
//
// The hashing scheme writes each field with an 8-byte length prefix into a
// single SHA-256 digest, so no field's content can be confused with a
// boundary between fields, giving a deterministic, collision-resistant
// digest over the whole structure.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"pagecraft/internal/model"
)

// ContentSignature identifies a node's configuration-identity: a short
// string of the form "<KindTag>-<hex8>", stable across runs and
// independent of a node's output config.
type ContentSignature string

func (s ContentSignature) String() string { return string(s) }

// ItemKey is a filesystem-safe, deterministic short identifier for an item.
type ItemKey string

func (k ItemKey) String() string { return string(k) }

const maxItemKeyLen = 200

// writeField writes an 8-byte big-endian length prefix followed by data,
// preventing field-boundary ambiguity in the hashed byte stream.
func writeField(h interface{ Write([]byte) (int, error) }, data []byte) {
	length := uint64(len(data))
	prefix := []byte{
		byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
		byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
	}
	h.Write(prefix)
	h.Write(data)
}

// Compute derives a node's ContentSignature from its processing config and
// items specification. kindTag identifies the concrete node implementation
// class (e.g. "xslt-transform", "copy").
//
// Only FileRef paths (identities, not contents) and the remaining config
// entries (serialised as JSON with sorted keys) and the items spec
// contribute. The output config never participates.
func Compute(kindTag string, cfg model.Config, items model.Input) (ContentSignature, error) {
	h := sha256.New()

	fileRefKeys := make([]string, 0, len(cfg))
	for k, v := range cfg {
		if v.IsFileRef() {
			fileRefKeys = append(fileRefKeys, k)
		}
	}
	sort.Strings(fileRefKeys)

	for _, k := range fileRefKeys {
		abs, err := filepath.Abs(cfg[k].FileRef.Path)
		if err != nil {
			return "", fmt.Errorf("signature: resolving FileRef %q for key %q: %w", cfg[k].FileRef.Path, k, err)
		}
		writeField(h, []byte(fmt.Sprintf("%s:%s", k, abs)))
	}

	remaining := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if v.IsFileRef() {
			continue
		}
		if v.IsNodeOutputRef() {
			remaining[k] = v.NodeOutputRef
		} else {
			remaining[k] = v.Raw
		}
	}
	remainingJSON, err := json.Marshal(remaining)
	if err != nil {
		return "", fmt.Errorf("signature: marshalling config: %w", err)
	}
	writeField(h, remainingJSON)

	writeField(h, itemsSpecBytes(items))

	sum := h.Sum(nil)
	hex8 := hex.EncodeToString(sum)[:16]
	return ContentSignature(fmt.Sprintf("%s-%s", kindTag, hex8)), nil
}

// itemsSpecBytes renders an Input's identity for hashing: a literal glob
// string, the comma-joined identities of a list (order preserved), or the
// upstream reference's node/key/glob triple.
func itemsSpecBytes(items model.Input) []byte {
	if items.IsZero() {
		return []byte("none")
	}
	switch items.Kind() {
	case model.InputKindGlob:
		return []byte("glob:" + items.GlobPattern())
	case model.InputKindList:
		parts := make([]string, 0, len(items.List()))
		for _, sub := range items.List() {
			parts = append(parts, string(itemsSpecBytes(sub)))
		}
		return []byte("list:" + strings.Join(parts, ","))
	case model.InputKindNodeOutputRef:
		ref := items.OutputRef()
		return []byte(fmt.Sprintf("ref:%s:%s:%s", ref.NodeName, ref.Key, ref.Glob))
	default:
		return []byte("unknown")
	}
}

// MakeItemKey derives a filesystem-safe ItemKey from one or more paths.
//
// The key depends only on the sorted multiset of paths: MakeItemKey(a, b)
// == MakeItemKey(b, a).
func MakeItemKey(paths ...string) ItemKey {
	if len(paths) == 0 {
		return ItemKey("item-" + hashHex8(""))
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	baseParts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		baseParts = append(baseParts, sanitizeKeyComponent(filepath.Base(p)))
	}
	base := strings.Join(baseParts, "-")
	if base == "" {
		base = "item"
	}

	hex8 := hashHex8(strings.Join(sorted, "|"))
	key := base + "-" + hex8

	if len(key) > maxItemKeyLen {
		keep := maxItemKeyLen - len(hex8) - 1
		if keep < 0 {
			keep = 0
		}
		key = base[:keep] + "-" + hex8
	}
	return ItemKey(key)
}

// UpstreamSetSignature is the first 16 hex chars of SHA-256 over
// sorted(paths).join("|"). It detects changes in the *set* of paths an
// upstream output resolves to, independent of content.
func UpstreamSetSignature(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return hashHex8(strings.Join(sorted, "|"))
}

func hashHex8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// sanitizeKeyComponent lowercases, replaces every character outside
// [a-z0-9] with "-", collapses repeated hyphens, and trims leading and
// trailing hyphens. Unlike the cache store's sanitisation, dots and
// underscores also become "-".
func sanitizeKeyComponent(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	return out
}

// FileHash computes the SHA-256 hex digest of data. Exposed for the
// cache-wrapper and validator, which both hash file content.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
