package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pagecraft/internal/cachestore"
	"pagecraft/internal/model"
	"pagecraft/internal/resolve"
	"pagecraft/internal/signature"
)

type testNode struct {
	name  string
	cfg   model.Config
	items model.Input
}

func (n *testNode) Name() string                    { return n.name }
func (n *testNode) Items() model.Input               { return n.items }
func (n *testNode) Config() model.Config             { return n.cfg }
func (n *testNode) OutputConfig() model.OutputConfig { return model.OutputConfig{} }
func (n *testNode) ExplicitDependencies() []string   { return nil }
func (n *testNode) Run(*Context) ([]model.NodeOutput, error) { return nil, nil }

func newTestContext(t *testing.T, outputs map[string][]model.NodeOutput) *Context {
	store, err := cachestore.New(t.TempDir(), logrus.New())
	require.NoError(t, err)

	lookup := func(name string) ([]model.NodeOutput, bool) {
		outs, ok := outputs[name]
		return outs, ok
	}
	return &Context{
		BuildDir: "build",
		Cache:    store,
		Resolver: resolve.New("build", lookup),
		Log:      logrus.New(),
	}
}

func TestWithCache_SecondRunIsCachedWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	item := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(item, []byte("1"), 0o644))

	ctx := newTestContext(t, nil)
	node := &testNode{name: "B", cfg: model.Config{}}

	calls := 0
	perform := func(item, out string) (*WorkResult, error) {
		calls++
		require.NoError(t, os.WriteFile(out, []byte("done"), 0o644))
		return &WorkResult{OutputsByKey: map[string][]string{"out": {out}}}, nil
	}
	cacheKey := func(item string) signature.ItemKey { return signature.MakeItemKey(item) }
	outputPath := func(item string) string { return filepath.Join(dir, "out.txt") }

	_, err := WithCache(ctx, node, "x", []string{item}, cacheKey, outputPath, perform)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	outcomes, err := WithCache(ctx, node, "x", []string{item}, cacheKey, outputPath, perform)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "second run must not invoke perform_work again")
	require.True(t, outcomes[0].Cached)
}

func TestWithCache_ContentChangeRecomputes(t *testing.T) {
	dir := t.TempDir()
	item := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(item, []byte("1"), 0o644))

	ctx := newTestContext(t, nil)
	node := &testNode{name: "B", cfg: model.Config{}}

	calls := 0
	perform := func(item, out string) (*WorkResult, error) {
		calls++
		require.NoError(t, os.WriteFile(out, []byte("done"), 0o644))
		return &WorkResult{OutputsByKey: map[string][]string{"out": {out}}}, nil
	}
	cacheKey := func(item string) signature.ItemKey { return signature.MakeItemKey(item) }
	outputPath := func(item string) string { return filepath.Join(dir, "out.txt") }

	_, err := WithCache(ctx, node, "x", []string{item}, cacheKey, outputPath, perform)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(item, []byte("2"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(item, future, future))

	outcomes, err := WithCache(ctx, node, "x", []string{item}, cacheKey, outputPath, perform)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.False(t, outcomes[0].Cached)
}

func TestWithCache_CachedHitRestoresToChangedOutputPath(t *testing.T) {
	dir := t.TempDir()
	item := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(item, []byte("1"), 0o644))

	ctx := newTestContext(t, nil)
	node := &testNode{name: "B", cfg: model.Config{}}

	calls := 0
	perform := func(item, out string) (*WorkResult, error) {
		calls++
		require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
		require.NoError(t, os.WriteFile(out, []byte("done"), 0o644))
		return &WorkResult{OutputsByKey: map[string][]string{"out": {out}}}, nil
	}
	cacheKey := func(item string) signature.ItemKey { return signature.MakeItemKey(item) }

	firstOutput := filepath.Join(dir, "v1", "out.txt")
	_, err := WithCache(ctx, node, "x", []string{item},
		cacheKey, func(string) string { return firstOutput }, perform)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Node's output-config changed (e.g. a different extension or output
	// directory) without touching content: the item must stay a cache hit,
	// but the artifact must be copied to the new expected path.
	secondOutput := filepath.Join(dir, "v2", "out.txt")
	outcomes, err := WithCache(ctx, node, "x", []string{item},
		cacheKey, func(string) string { return secondOutput }, perform)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "output-config-only change must not recompute")
	require.True(t, outcomes[0].Cached)
	require.Equal(t, secondOutput, outcomes[0].Output)

	data, err := os.ReadFile(secondOutput)
	require.NoError(t, err)
	require.Equal(t, "done", string(data))
}

func TestWithCache_UpstreamSetChangeInvalidates(t *testing.T) {
	upstream := []model.NodeOutput{{"out": {"build/A/one.txt"}}}
	ctx := newTestContext(t, map[string][]model.NodeOutput{"A": upstream})

	node := &testNode{
		name: "B",
		cfg:  model.Config{},
	}
	calls := 0
	perform := func(item, out string) (*WorkResult, error) {
		calls++
		return &WorkResult{OutputsByKey: map[string][]string{"out": {out}}}, nil
	}
	cacheKey := func(item string) signature.ItemKey { return signature.MakeItemKey("synthetic") }
	outputPath := func(item string) string { return "build/B/out.txt" }

	node.items = model.FromOutput(model.NewNodeOutputRef("A", "out"))
	_, err := WithCache(ctx, node, "x", []string{""}, cacheKey, outputPath, perform)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Upstream now produces a second file: the set signature changes.
	ctx2 := newTestContext(t, nil)
	ctx2.Cache = ctx.Cache
	ctx2.Resolver = resolve.New("build", func(name string) ([]model.NodeOutput, bool) {
		if name != "A" {
			return nil, false
		}
		return []model.NodeOutput{{"out": {"build/A/one.txt", "build/A/two.txt"}}}, true
	})

	_, err = WithCache(ctx2, node, "x", []string{""}, cacheKey, outputPath, perform)
	require.NoError(t, err)
	require.Equal(t, 2, calls, "upstream set change must invalidate the cached entry")
}
