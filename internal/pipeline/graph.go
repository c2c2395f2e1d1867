package pipeline

import (
	"fmt"
	"sort"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
)

// Graph is a DAG of pipeline steps with cycle detection and deterministic ordering
type Graph struct {
	Name       string
	Parameters []Parameter

	steps []*Step
	nodes map[string]*node
	order []string
}

// node tracks where a step sits in the graph
type node struct {
	step   *Step
	parent *node
	branch gate.Branch
	seq    int
}

// New creates an empty graph
func New(name string, params ...Parameter) *Graph {
	return &Graph{
		Name:       name,
		Parameters: params,
		nodes:      make(map[string]*node),
	}
}

// AddStep appends a top-level step together with any nested branch steps
func (g *Graph) AddStep(step *Step) error {
	if g.nodes == nil {
		g.nodes = make(map[string]*node)
	}
	staged := make(map[string]*node)
	staging := make([]string, 0)
	if err := g.stage(step, nil, "", staged, &staging); err != nil {
		return err
	}

	for _, name := range staging {
		n := staged[name]
		n.seq = len(g.order)
		g.nodes[name] = n
		g.order = append(g.order, name)
	}
	g.steps = append(g.steps, step)
	return nil
}

// stage registers a step and its nested steps without touching the graph
func (g *Graph) stage(step *Step, parent *node, branch gate.Branch, staged map[string]*node, staging *[]string) error {
	if step == nil {
		return invalid(g.Name, "step cannot be nil")
	}
	if step.Name == "" {
		return invalid(g.Name, "step must have a name")
	}
	if _, exists := g.nodes[step.Name]; exists {
		return invalid(g.Name, "duplicate step name %s", step.Name)
	}
	if _, exists := staged[step.Name]; exists {
		return invalid(g.Name, "duplicate step name %s", step.Name)
	}

	n := &node{step: step, parent: parent, branch: branch}
	staged[step.Name] = n
	*staging = append(*staging, step.Name)

	if step.Condition == nil {
		return nil
	}
	for _, child := range step.Condition.IfSteps {
		if err := g.stage(child, n, gate.IfBranch, staged, staging); err != nil {
			return err
		}
	}
	for _, child := range step.Condition.ElseSteps {
		if err := g.stage(child, n, gate.ElseBranch, staged, staging); err != nil {
			return err
		}
	}
	return nil
}

// Steps returns the top-level steps in insertion order
func (g *Graph) Steps() []*Step {
	return append([]*Step(nil), g.steps...)
}

// Len counts every step, nested ones included
func (g *Graph) Len() int {
	return len(g.order)
}

// Lookup finds a step by name at any nesting depth
func (g *Graph) Lookup(name string) (*Step, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return n.step, true
}

// Enclosing returns the condition step and branch a nested step belongs to
func (g *Graph) Enclosing(name string) (string, gate.Branch, bool) {
	n, ok := g.nodes[name]
	if !ok || n.parent == nil {
		return "", "", false
	}
	return n.parent.step.Name, n.branch, true
}

// Parameter finds a declared parameter
func (g *Graph) Parameter(name string) (Parameter, bool) {
	for _, p := range g.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// visible reports whether target can be referenced from n.
// Targets must be top-level or inside a branch that encloses n.
func visible(n, target *node) bool {
	if target.parent == nil {
		return true
	}
	for scope := n; scope != nil; scope = scope.parent {
		if scope.parent == target.parent && scope.branch == target.branch {
			return true
		}
	}
	return false
}

// references lists every value a step reads, condition subject included
func references(step *Step) []Value {
	names := make([]string, 0, len(step.Inputs))
	for k := range step.Inputs {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make([]Value, 0, len(names)+1)
	for _, k := range names {
		values = append(values, step.Inputs[k])
	}
	if step.Condition != nil {
		values = append(values, step.Condition.Subject)
	}
	return values
}

// dependencies returns the effective, de-duplicated dependency names of a step:
// explicit DependsOn, referenced steps, then the enclosing condition
func (g *Graph) dependencies(n *node) []string {
	seen := make(map[string]bool)
	deps := make([]string, 0)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		deps = append(deps, name)
	}

	for _, dep := range n.step.DependsOn {
		add(dep)
	}
	for _, v := range references(n.step) {
		if ref, ok := v.Ref(); ok {
			add(ref.Step)
		}
	}
	if n.parent != nil {
		add(n.parent.step.Name)
	}
	return deps
}

// Validate checks references, branch scoping and acyclicity
func (g *Graph) Validate() error {
	declared := make(map[string]bool, len(g.Parameters))
	for _, p := range g.Parameters {
		if p.Name == "" {
			return invalid(g.Name, "parameter must have a name")
		}
		if declared[p.Name] {
			return invalid(g.Name, "duplicate parameter %s", p.Name)
		}
		declared[p.Name] = true
	}

	for _, name := range g.order {
		n := g.nodes[name]
		step := n.step

		if step.Type == TypeCondition && (step.Condition == nil || step.Condition.Predicate == nil) {
			return invalid(g.Name, "condition step %s needs a predicate", step.Name)
		}
		if step.Type != TypeCondition && step.Condition != nil {
			return invalid(g.Name, "step %s of type %s cannot have branches", step.Name, step.Type)
		}

		for _, dep := range step.DependsOn {
			target, ok := g.nodes[dep]
			if !ok {
				return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Target: dep, Reason: "no such step"}}
			}
			if !visible(n, target) {
				return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Target: dep, Reason: "step is inside another branch"}}
			}
		}

		for _, v := range references(step) {
			if param, ok := v.Parameter(); ok {
				if !declared[param] {
					return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Parameter: param}}
				}
				continue
			}
			ref, ok := v.Ref()
			if !ok {
				continue
			}
			target, exists := g.nodes[ref.Step]
			switch {
			case !exists:
				return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Target: ref.Step, Output: ref.Output, Reason: "no such step"}}
			case !target.step.HasOutput(ref.Output):
				return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Target: ref.Step, Output: ref.Output, Reason: "output not declared"}}
			case !visible(n, target):
				return &ValidationError{Graph: g.Name, Err: &UnresolvedReferenceError{Step: name, Target: ref.Step, Output: ref.Output, Reason: "step is inside another branch"}}
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return &ValidationError{Graph: g.Name, Err: err}
	}
	return nil
}

// detectCycles runs a three-color DFS in insertion order
func (g *Graph) detectCycles() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.order))
	stack := make([]string, 0)

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		color[name] = gray
		stack = append(stack, name)

		for _, dep := range g.dependencies(g.nodes[name]) {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), stack[start:]...), dep)
				return &CycleError{Cycle: cycle}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range g.order {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder validates the graph and returns every step, nested ones included,
// after all of its dependencies. Ties are broken by insertion order.
func (g *Graph) TopologicalOrder() ([]*Step, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		deps := g.dependencies(g.nodes[name])
		inDegree[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0)
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	ordered := make([]*Step, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, g.nodes[current].step)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Slice(queue, func(i, j int) bool {
			return g.nodes[queue[i]].seq < g.nodes[queue[j]].seq
		})
	}

	if len(ordered) != len(g.order) {
		return nil, &ValidationError{Graph: g.Name, Err: fmt.Errorf("failed to order %d of %d steps", len(g.order)-len(ordered), len(g.order))}
	}
	return ordered, nil
}
