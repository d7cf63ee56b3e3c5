// Package resolve expands an Input into a concrete, ordered list of file
// paths (spec §4.2). It is purely read-only: it never touches the cache
// and never mutates the pipeline's node-output map.
package resolve

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"pagecraft/internal/errs"
	"pagecraft/internal/model"
)

// OutputLookup returns the prior NodeOutput list reported by the named
// node, or (nil, false) if that node has not run (or does not exist).
type OutputLookup func(nodeName string) ([]model.NodeOutput, bool)

// BuildDir is the root under which default node output is constructed;
// it is used to build the extended glob pattern for build-tree outputs.
type Resolver struct {
	BuildDir string
	Outputs  OutputLookup
}

// New constructs a Resolver over the given build directory and
// node-output lookup function.
func New(buildDir string, outputs OutputLookup) *Resolver {
	return &Resolver{BuildDir: buildDir, Outputs: outputs}
}

// Resolve expands input into an ordered, duplicate-free list of paths,
// applying the four rules of spec §4.2 in order. nodeName identifies the
// consuming node, used only to annotate errors.
func (r *Resolver) Resolve(nodeName string, input model.Input) ([]string, error) {
	if input.IsZero() {
		return nil, nil
	}

	switch input.Kind() {
	case model.InputKindNodeOutputRef:
		return r.resolveOutputRef(nodeName, input.OutputRef())
	case model.InputKindGlob:
		return r.resolveGlob(nodeName, input.GlobPattern())
	case model.InputKindList:
		return r.resolveList(nodeName, input.List())
	default:
		return nil, nil
	}
}

func (r *Resolver) resolveOutputRef(nodeName string, ref model.NodeOutputRef) ([]string, error) {
	outputs, ok := r.Outputs(ref.NodeName)
	if !ok {
		return nil, errs.NewResolutionError(nodeName,
			"node %q hasn't run or produced no outputs under %q", ref.NodeName, ref.Key)
	}

	seen := make(map[string]struct{})
	candidates := make([]string, 0)
	for _, out := range outputs {
		paths, ok := out[ref.Key]
		if !ok {
			continue
		}
		for _, p := range paths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			candidates = append(candidates, p)
		}
	}
	sort.Strings(candidates)

	if len(candidates) == 0 {
		return nil, errs.NewResolutionError(nodeName,
			"node %q hasn't run or produced no outputs under %q", ref.NodeName, ref.Key)
	}

	if !ref.HasGlob() {
		return candidates, nil
	}

	filtered := filterByGlob(candidates, ref.Glob)
	if len(filtered) == 0 {
		// Accommodate outputs living under the default build tree: retry
		// with <buildDir>/<anyNode>/ prepended to the user's glob.
		extended := r.BuildDir + "/*/" + ref.Glob
		filtered = filterByGlob(candidates, extended)
	}
	if len(filtered) == 0 {
		return nil, errs.NewResolutionError(nodeName,
			"glob filter %q matched none of the candidate outputs from %q[%q]: %v",
			ref.Glob, ref.NodeName, ref.Key, candidates)
	}
	return filtered, nil
}

func filterByGlob(paths []string, pattern string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if ok, _ := doublestar.Match(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Resolver) resolveGlob(nodeName, pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, errs.NewResolutionError(nodeName, "invalid glob pattern %q: %v", pattern, err)
	}
	if len(matches) == 0 {
		return nil, errs.NewResolutionError(nodeName, "No files found for pattern: %s", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

func (r *Resolver) resolveList(nodeName string, inputs []model.Input) ([]string, error) {
	seen := make(map[string]struct{})
	var all []string
	for _, sub := range inputs {
		paths, err := r.Resolve(nodeName, sub)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	return all, nil
}
