package pipeline

import (
	"pagecraft/internal/errs"
	"pagecraft/internal/graph"
	"pagecraft/internal/model"
)

// Pipeline owns the dependency graph and the per-node output list (spec
// §3 "Relationships and lifecycles"). Nodes are registered once and are
// never mutated afterwards; Pipeline has no method for adding a
// dependency to a node after Register.
type Pipeline struct {
	nodes map[string]Node
	order []string
	ctx   *Context
}

// New constructs an empty Pipeline running against ctx.
func New(ctx *Context) *Pipeline {
	return &Pipeline{nodes: make(map[string]Node), ctx: ctx}
}

// Register adds a node to the pipeline. If the node is PipelineAware, its
// OnAddedToPipeline hook runs immediately, letting a composite node
// register its own sub-nodes in the same call (spec §4.8).
func (p *Pipeline) Register(n Node) error {
	name := n.Name()
	if _, exists := p.nodes[name]; exists {
		return errs.NewConfigError(name, "duplicate node name")
	}
	p.nodes[name] = n
	p.order = append(p.order, name)

	if aware, ok := n.(PipelineAware); ok {
		aware.OnAddedToPipeline(p)
	}
	return nil
}

// Node returns a registered node by name.
func (p *Pipeline) Node(name string) (Node, bool) {
	n, ok := p.nodes[name]
	return n, ok
}

// GetNodeOutputs returns the prior outputs reported by name, if it has run.
func (p *Pipeline) GetNodeOutputs(name string) ([]model.NodeOutput, bool) {
	return p.ctx.GetNodeOutputs(name)
}

// Run builds the dependency graph from explicit and inferred edges,
// validates it, and executes every node in a valid topological order,
// stopping on the first failure (spec §4.7).
func (p *Pipeline) Run() ([]graph.Result, error) {
	g, err := p.buildGraph()
	if err != nil {
		return nil, err
	}
	return g.Execute(p)
}

// RunNode implements graph.Runner: it runs one node and commits its
// outputs to the shared context immediately afterwards.
func (p *Pipeline) RunNode(name string) ([]model.NodeOutput, error) {
	n, ok := p.nodes[name]
	if !ok {
		return nil, errs.NewConfigError(name, "unknown node")
	}
	outs, err := n.Run(p.ctx)
	if err != nil {
		return nil, errs.NewNodeError(name, err)
	}
	p.ctx.setNodeOutputs(name, outs)
	return outs, nil
}

// buildGraph populates explicit edges (from each node's declared
// dependency list) and inferred edges (from every NodeOutputRef
// encountered in a node's items or processing config) (spec §4.7).
func (p *Pipeline) buildGraph() (*graph.Graph, error) {
	g, err := graph.New(p.order)
	if err != nil {
		return nil, err
	}

	for _, name := range p.order {
		n := p.nodes[name]

		for _, dep := range n.ExplicitDependencies() {
			if err := g.AddDependency(name, dep); err != nil {
				return nil, err
			}
		}

		for _, ref := range collectNodeOutputRefs(n.Items()) {
			if err := g.AddDependency(name, ref.NodeName); err != nil {
				return nil, err
			}
		}

		for _, v := range n.Config() {
			if v.IsNodeOutputRef() {
				if err := g.AddDependency(name, v.NodeOutputRef.NodeName); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
