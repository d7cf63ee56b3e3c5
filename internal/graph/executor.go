package graph

import (
	"pagecraft/internal/model"
)

// Runner executes a single named node and returns its reported outputs.
// The graph package never knows about the Node contract itself — only
// about names and the outputs they produce — so it stays free of any
// dependency on the pipeline package.
type Runner interface {
	RunNode(name string) ([]model.NodeOutput, error)
}

// Result is the outcome of one node's execution during a graph run.
type Result struct {
	Node    string
	Outputs []model.NodeOutput
}

// Execute builds the topological order and runs every node sequentially
// through runner, stopping immediately on the first error (spec §4.7,
// §5): a node failure halts dispatch of new nodes. Execute takes no
// cancellation signal; it returns only when every node has run or one
// has failed.
func (g *Graph) Execute(runner Runner) ([]Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(order))
	for _, name := range order {
		outputs, err := runner.RunNode(name)
		if err != nil {
			return results, err
		}
		results = append(results, Result{Node: name, Outputs: outputs})
	}
	return results, nil
}
