// Package cachevalid implements the four-tier cache validity check (spec
// §4.5): upstream-set signatures, tracked-file timestamps, tracked-file
// content hashes, and output existence. Any failure invalidates the entry;
// none of the four checks is itself an error — a failed check is logged
// (when debug logging is on) as a cache-miss reason, never raised.
package cachevalid

import (
	"os"

	"github.com/sirupsen/logrus"

	"pagecraft/internal/cachestore"
	"pagecraft/internal/model"
	"pagecraft/internal/signature"
)

// Resolver is the subset of the input resolver the validator needs: the
// ability to resolve an upstream output reference back to its current
// list of paths.
type Resolver interface {
	Resolve(nodeName string, input model.Input) ([]string, error)
}

// Validator checks CacheEntry validity against the live filesystem and
// the current graph of upstream outputs.
type Validator struct {
	Resolver Resolver
	Log      *logrus.Logger
}

// New constructs a Validator.
func New(resolver Resolver, log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Validator{Resolver: resolver, Log: log}
}

// IsValid runs the four checks in order, cheapest first, short-circuiting
// on the first failure (spec §5 ordering guarantee).
func (v *Validator) IsValid(nodeName string, entry cachestore.CacheEntry) bool {
	if !v.upstreamSignaturesValid(nodeName, entry) {
		return false
	}
	if !v.trackedFilesValid(nodeName, entry) {
		return false
	}
	if !v.outputsExist(nodeName, entry) {
		return false
	}
	return true
}

func (v *Validator) debugf(format string, args ...any) {
	v.Log.WithField("component", "cachevalid").Debugf(format, args...)
}

func (v *Validator) upstreamSignaturesValid(nodeName string, entry cachestore.CacheEntry) bool {
	for upstreamNode, want := range entry.UpstreamOutputSignatures {
		ref := model.NewNodeOutputRef(upstreamNode, want.OutputKey)
		if want.Glob != "" {
			ref = ref.WithGlob(want.Glob)
		}
		paths, err := v.Resolver.Resolve(nodeName, model.FromOutput(ref))
		if err != nil {
			v.debugf("cache miss: upstream %q unresolvable (%v)", upstreamNode, err)
			return false
		}
		got := signature.UpstreamSetSignature(paths)
		if got != want.Signature {
			v.debugf("cache miss: upstream %q signature changed (%s -> %s)", upstreamNode, want.Signature, got)
			return false
		}
	}
	return true
}

func (v *Validator) trackedFilesValid(nodeName string, entry cachestore.CacheEntry) bool {
	for path, tracked := range entry.TrackedFiles {
		info, err := os.Stat(path)
		if err != nil {
			v.debugf("cache miss: tracked file %q missing (%v)", path, err)
			return false
		}

		modMS := info.ModTime().UnixMilli()
		if modMS == tracked.ModTimeMS {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			v.debugf("cache miss: tracked file %q unreadable after touch (%v)", path, err)
			return false
		}
		if signature.FileHash(data) != tracked.Hash {
			v.debugf("cache miss: tracked file %q content changed", path)
			return false
		}
		// Touched but identical: still valid, timestamp field is left untouched.
	}
	return true
}

func (v *Validator) outputsExist(nodeName string, entry cachestore.CacheEntry) bool {
	for key, paths := range entry.OutputsByKey {
		for _, p := range paths {
			if _, err := os.Stat(p); err != nil {
				v.debugf("cache miss: output %q under key %q missing", p, key)
				return false
			}
		}
	}
	return true
}
