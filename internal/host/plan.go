// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"fmt"

	"github.com/invowk/lazyload/internal/dag"
	"github.com/invowk/lazyload/internal/isolation"
	"github.com/invowk/lazyload/internal/resolution"
	"github.com/invowk/lazyload/pkg/modident"
)

type (
	// Plan is the dependency closure of a module in activation order.
	Plan struct {
		Root modident.Identity
		// Steps lists every module in the closure, dependencies before the
		// modules that import them. The root is last.
		Steps []Step
	}

	// Step is one module of a plan.
	Step struct {
		Identity     modident.Identity
		Location     string
		Builtin      bool
		Dependencies []modident.Identity
	}

	planner struct {
		h     *Host
		graph *dag.Graph
		steps map[string]*Step
	}
)

// Plan resolves the dependency closure of id through the provider and the
// binary reader without instantiating anything. Cycles are reported as
// *dag.CycleError; missing modules as *provider.NotFoundError.
func (h *Host) Plan(ctx context.Context, id modident.Identity) (*Plan, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	p := &planner{h: h, graph: dag.New(), steps: make(map[string]*Step)}
	if err := p.visit(ctx, id, nil); err != nil {
		return nil, err
	}

	order, err := p.graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	plan := &Plan{Root: id, Steps: make([]Step, 0, len(order))}
	for _, key := range order {
		plan.Steps = append(plan.Steps, *p.steps[key])
	}
	return plan, nil
}

func (p *planner) visit(ctx context.Context, id modident.Identity, parent *resolution.Node) error {
	key := p.h.cmp.Key(id)
	if _, ok := p.steps[key]; ok {
		return nil
	}
	if isolation.IsBuiltin(string(id.Name)) {
		p.steps[key] = &Step{Identity: id, Builtin: true}
		p.graph.AddNode(key)
		return nil
	}

	var node *resolution.Node
	if parent == nil {
		node = resolution.NewRoot(id)
	} else {
		node = parent.NewScope(id)
	}
	payload, err := p.h.provider.Payload(ctx, id, node)
	if err != nil {
		return err
	}
	deps, err := p.h.reader.Dependencies(payload.Primary)
	if err != nil {
		return fmt.Errorf("module %s at %s: %w", id, payload.Location.Primary, err)
	}

	p.steps[key] = &Step{Identity: id, Location: payload.Location.Primary, Dependencies: deps}
	p.graph.AddNode(key)
	for _, dep := range deps {
		if p.h.cmp.Equal(dep, id) || node.HasAncestor(dep, p.h.cmp) {
			return &dag.CycleError{Cycle: branch(node, dep)}
		}
		if err := p.visit(ctx, dep, node); err != nil {
			return err
		}
		p.graph.AddEdge(p.h.cmp.Key(dep), key)
	}
	return nil
}

func branch(node *resolution.Node, dep modident.Identity) []string {
	path := node.Path()
	out := make([]string, 0, len(path)+1)
	for _, id := range path {
		out = append(out, id.String())
	}
	return append(out, dep.String())
}
