package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"pagecraft/internal/cachestore"
	"pagecraft/internal/model"
	"pagecraft/internal/resolve"
)

// Context is the sole runtime surface passed to a node's Run (spec §4.3).
type Context struct {
	BuildDir    string
	ProjectRoot string
	Cache       *cachestore.Store
	Resolver    *resolve.Resolver
	Log         *logrus.Logger

	outputs map[string][]model.NodeOutput
}

// ResolveInput expands input into concrete paths on behalf of nodeName.
func (c *Context) ResolveInput(nodeName string, input model.Input) ([]string, error) {
	return c.Resolver.Resolve(nodeName, input)
}

// Logf writes a progress line tagged with the running node.
func (c *Context) Logf(nodeName, format string, args ...any) {
	c.Log.WithField("node", nodeName).Infof(format, args...)
}

// GetNodeOutputs returns the prior outputs reported by name, if it has run.
func (c *Context) GetNodeOutputs(name string) ([]model.NodeOutput, bool) {
	outs, ok := c.outputs[name]
	return outs, ok
}

// setNodeOutputs is called by the pipeline immediately after a node's Run
// returns; never concurrently with a reader (spec §5 shared-resources note).
func (c *Context) setNodeOutputs(name string, outs []model.NodeOutput) {
	if c.outputs == nil {
		c.outputs = make(map[string][]model.NodeOutput)
	}
	c.outputs[name] = outs
}

// StripBuildPrefix strips build_dir and the leading node-name segment when
// inputPath lives inside the build tree; otherwise it expresses inputPath
// relative to the project root (spec §4.3, §6).
func (c *Context) StripBuildPrefix(inputPath string) string {
	rel, err := filepath.Rel(c.BuildDir, inputPath)
	if err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		rel = filepath.ToSlash(rel)
		if idx := strings.Index(rel, "/"); idx >= 0 {
			return rel[idx+1:]
		}
		return rel
	}

	if c.ProjectRoot != "" {
		if relRoot, err := filepath.Rel(c.ProjectRoot, inputPath); err == nil && !strings.HasPrefix(relRoot, "..") {
			return filepath.ToSlash(relRoot)
		}
	}
	return filepath.ToSlash(inputPath)
}

// GetBuildPath computes the canonical build-output path for inputPath
// under nodeName, optionally replacing the extension (spec §4.3, §6).
func (c *Context) GetBuildPath(nodeName, inputPath, newExt string) string {
	stripped := c.StripBuildPrefix(inputPath)
	out := filepath.Join(c.BuildDir, nodeName, stripped)
	if newExt != "" {
		ext := filepath.Ext(out)
		out = strings.TrimSuffix(out, ext) + newExt
	}
	return out
}
