package pipeline

import "github.com/brunopistone/sm-iot-end-to-end/internal/gate"

// Dependencies returns the effective direct dependencies of a step
func (g *Graph) Dependencies(name string) []string {
	n, exists := g.nodes[name]
	if !exists {
		return []string{}
	}
	return g.dependencies(n)
}

// Dependents returns the steps that directly depend on the given step, in insertion order
func (g *Graph) Dependents(name string) []string {
	dependents := make([]string, 0)

	for _, candidate := range g.order {
		for _, dep := range g.dependencies(g.nodes[candidate]) {
			if dep == name {
				dependents = append(dependents, candidate)
				break
			}
		}
	}

	return dependents
}

// TransitiveDependencies returns all steps the given step waits on
func (g *Graph) TransitiveDependencies(name string) map[string]bool {
	return g.closure(name, g.Dependencies)
}

// TransitiveDependents returns all steps that wait on the given step
func (g *Graph) TransitiveDependents(name string) map[string]bool {
	return g.closure(name, g.Dependents)
}

func (g *Graph) closure(name string, next func(string) []string) map[string]bool {
	result := make(map[string]bool)
	visited := make(map[string]bool)

	var traverse func(string)
	traverse = func(current string) {
		if visited[current] {
			return
		}
		visited[current] = true

		for _, dep := range next(current) {
			result[dep] = true
			traverse(dep)
		}
	}

	traverse(name)
	return result
}

// BranchSteps returns every step nested under a condition's branch, at any depth, in insertion order
func (g *Graph) BranchSteps(condition string, branch gate.Branch) []string {
	members := make([]string, 0)
	for _, name := range g.order {
		for n := g.nodes[name]; n.parent != nil; n = n.parent {
			if n.parent.step.Name == condition && n.branch == branch {
				members = append(members, name)
				break
			}
		}
	}
	return members
}
