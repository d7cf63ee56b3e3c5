package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"pagecraft/internal/cachestore"
	"pagecraft/internal/cachevalid"
	"pagecraft/internal/errs"
	"pagecraft/internal/model"
	"pagecraft/internal/signature"
)

// WorkResult is what a node's perform_work callback reports back to the
// cache wrapper: any dependency it discovered while doing the work (e.g.
// an imported stylesheet not named in its config), and the output paths
// it produced, grouped by output key.
type WorkResult struct {
	DiscoveredDependencies []string
	OutputsByKey           map[string][]string
}

// CacheKeyFunc derives an item's cache key. The caller is responsible for
// uniqueness among the items passed to WithCache.
type CacheKeyFunc func(item string) signature.ItemKey

// OutputPathFunc derives an item's currently-expected output path.
type OutputPathFunc func(item string) string

// PerformWorkFunc does the node's actual work for one item, writing to
// outputPath, and reports what it discovered and produced.
type PerformWorkFunc func(item string, outputPath string) (*WorkResult, error)

// ItemOutcome is one entry of WithCache's report.
type ItemOutcome struct {
	Item   string
	Output string
	Cached bool
	Result *WorkResult
}

// WithCache implements the per-item cache-or-compute loop shared by every
// concrete node (spec §4.6). kindTag identifies the node's implementation
// class and becomes part of its content signature.
func WithCache(
	ctx *Context,
	node Node,
	kindTag string,
	items []string,
	cacheKey CacheKeyFunc,
	outputPath OutputPathFunc,
	performWork PerformWorkFunc,
) ([]ItemOutcome, error) {
	cfg := node.Config()

	sig, err := signature.Compute(kindTag, cfg, node.Items())
	if err != nil {
		return nil, errs.NewNodeError(node.Name(), err)
	}

	// Step 2: config dependency paths (FileRef identities + eagerly
	// resolved NodeOutputRef paths), both tracked as origin fileRef.
	var configDepPaths []string
	upstreamSigs := make(map[string]cachestore.UpstreamOutputSignature)

	configKeys := make([]string, 0, len(cfg))
	for k := range cfg {
		configKeys = append(configKeys, k)
	}
	sort.Strings(configKeys)

	for _, k := range configKeys {
		v := cfg[k]
		switch {
		case v.IsFileRef():
			configDepPaths = append(configDepPaths, v.FileRef.Path)
		case v.IsNodeOutputRef():
			ref := *v.NodeOutputRef
			paths, err := ctx.ResolveInput(node.Name(), model.FromOutput(ref))
			if err != nil {
				return nil, err
			}
			configDepPaths = append(configDepPaths, paths...)
			upstreamSigs[ref.NodeName] = cachestore.UpstreamOutputSignature{
				Signature: signature.UpstreamSetSignature(paths),
				OutputKey: ref.Key,
				Glob:      ref.Glob,
			}
		}
	}

	// Step 3: upstream signatures for NodeOutputRefs found in items too.
	for _, ref := range collectNodeOutputRefs(node.Items()) {
		paths, err := ctx.ResolveInput(node.Name(), model.FromOutput(ref))
		if err != nil {
			return nil, err
		}
		upstreamSigs[ref.NodeName] = cachestore.UpstreamOutputSignature{
			Signature: signature.UpstreamSetSignature(paths),
			OutputKey: ref.Key,
			Glob:      ref.Glob,
		}
	}

	// Batch-precompute hashes for config dependency paths once: a single
	// stylesheet shared by thousands of items is hashed only once.
	fileRefHashes := make(map[string]cachestore.TrackedFile, len(configDepPaths))
	for _, p := range uniqueStrings(configDepPaths) {
		tf, err := hashTrackedFile(p, cachestore.OriginFileRef)
		if err != nil {
			return nil, errs.NewNodeError(node.Name(), err)
		}
		fileRefHashes[p] = tf
	}

	cacheKeys := make([]signature.ItemKey, len(items))
	for i, item := range items {
		cacheKeys[i] = cacheKey(item)
	}
	if err := ctx.Cache.CleanExcept(sig, cacheKeys); err != nil {
		return nil, err
	}

	validator := cachevalid.New(ctx.Resolver, ctx.Log)

	outcomes := make([]ItemOutcome, 0, len(items))
	for i, item := range items {
		key := cacheKeys[i]
		expectedOutput := outputPath(item)

		cached, ok := ctx.Cache.Get(sig, key)
		if ok && validator.IsValid(node.Name(), cached) {
			if err := restoreExpectedPath(cached, expectedOutput); err != nil {
				return outcomes, err
			}
			ctx.Logf(node.Name(), "Skipping: %s (cached)", item)
			outcomes = append(outcomes, ItemOutcome{Item: item, Output: expectedOutput, Cached: true})
			continue
		}

		result, err := performWork(item, expectedOutput)
		if err != nil {
			return outcomes, errs.NewNodeError(node.Name(), err)
		}

		tracked := make(map[string]cachestore.TrackedFile, len(fileRefHashes)+2)
		for p, tf := range fileRefHashes {
			tracked[p] = tf
		}
		if item != "" {
			tf, err := hashTrackedFile(item, cachestore.OriginItem)
			if err != nil {
				return outcomes, errs.NewNodeError(node.Name(), err)
			}
			tracked[item] = tf
		}
		if result != nil {
			for _, dep := range result.DiscoveredDependencies {
				tf, err := hashTrackedFile(dep, cachestore.OriginDiscovered)
				if err != nil {
					return outcomes, errs.NewNodeError(node.Name(), err)
				}
				tracked[dep] = tf
			}
		}

		outputsByKey := map[string][]string{}
		if result != nil {
			for k, v := range result.OutputsByKey {
				outputsByKey[k] = v
			}
		}

		entry := cachestore.CacheEntry{
			OutputsByKey:             outputsByKey,
			OutputBaseDir:            filepath.Dir(expectedOutput),
			TrackedFiles:             tracked,
			UpstreamOutputSignatures: upstreamSigs,
			TimestampMS:              time.Now().UnixMilli(),
			ItemKey:                  string(key),
		}
		if err := ctx.Cache.Set(sig, key, entry); err != nil {
			return outcomes, err
		}

		outcomes = append(outcomes, ItemOutcome{Item: item, Output: expectedOutput, Cached: false, Result: result})
	}
	return outcomes, nil
}

// restoreExpectedPath copies a cached artifact to expectedOutput when the
// node's presentation-only config (output dir, extension) has changed
// since the entry was written but its content signature has not
// (invariant I3). Nodes with more than one output path per item are left
// untouched: the convention only disambiguates the common single-output
// case.
func restoreExpectedPath(entry cachestore.CacheEntry, expectedOutput string) error {
	var only string
	count := 0
	for _, paths := range entry.OutputsByKey {
		for _, p := range paths {
			only = p
			count++
		}
	}
	if count != 1 || only == expectedOutput {
		return nil
	}
	return cachestore.CopyToExpectedPath(only, expectedOutput)
}

func hashTrackedFile(path string, origin cachestore.TrackedFileOrigin) (cachestore.TrackedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cachestore.TrackedFile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cachestore.TrackedFile{}, err
	}
	return cachestore.TrackedFile{
		Hash:      signature.FileHash(data),
		ModTimeMS: info.ModTime().UnixMilli(),
		Origin:    origin,
	}, nil
}

func collectNodeOutputRefs(input model.Input) []model.NodeOutputRef {
	if input.IsZero() {
		return nil
	}
	switch input.Kind() {
	case model.InputKindNodeOutputRef:
		return []model.NodeOutputRef{input.OutputRef()}
	case model.InputKindList:
		var out []model.NodeOutputRef
		for _, sub := range input.List() {
			out = append(out, collectNodeOutputRefs(sub)...)
		}
		return out
	default:
		return nil
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
