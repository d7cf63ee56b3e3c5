// Package pipeline is the runtime facade: the Node contract, the context
// passed to every node, and the Pipeline that owns the dependency graph
// and drives sequential execution (spec §4.1, §4.3, §4.7).
package pipeline

import "pagecraft/internal/model"

// Node is the capability set every pipeline participant implements (spec
// §4.1). Run is the only method a concrete node must supply meaningfully;
// the rest describe its identity and dependency surface.
type Node interface {
	Name() string
	Items() model.Input
	Config() model.Config
	OutputConfig() model.OutputConfig
	ExplicitDependencies() []string
	Run(ctx *Context) ([]model.NodeOutput, error)
}

// PipelineAware is an optional hook a composite node implements to
// register its internal sub-nodes at the moment it is added to the
// pipeline (spec §4.8).
type PipelineAware interface {
	OnAddedToPipeline(p *Pipeline)
}
