package registry

import "sonicwall-to-mx/internal/model"

type state uint8

const (
	unvisited state = iota
	resolving
	resolved
)

// Reasons recorded for members that cannot be bound.
const (
	ReasonNotFound    = "not found"
	ReasonCyclic      = "cyclic reference"
	ReasonDuplicate   = "duplicate definition"
	ReasonEmpty       = "contains no valid entries"
	reasonUnsupported = "unsupported address family (%s)"
)

type node struct {
	name    string
	group   bool
	members []model.MemberRef
	state   state
	leaves  []int
}

// graph is an arena of named nodes. Edges are member names, resolved to
// indices only when a group is finalized.
type graph struct {
	nodes []node
	index map[string]int
}

func newGraph() *graph {
	return &graph{index: make(map[string]int)}
}

// add inserts a node and reports false when the name is already taken.
func (g *graph) add(name string, group bool, members []model.MemberRef) (int, bool) {
	if _, ok := g.index[name]; ok {
		return 0, false
	}
	n := node{name: name, group: group, members: members}
	if !group {
		n.state = resolved
	}
	g.nodes = append(g.nodes, n)
	g.index[name] = len(g.nodes) - 1
	return len(g.nodes) - 1, true
}

func (g *graph) lookup(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

type issue struct {
	member string
	group  string
	reason string
}

// resolver decides what to do with members the graph cannot bind by itself.
type resolver struct {
	// reject returns a reason for members that must not be followed.
	reject func(m model.MemberRef) string
	// fallback reports whether an undefined name is known elsewhere; it is
	// then added as a leaf.
	fallback func(name string) bool
}

// resolve finalizes every group bottom-up. Each group is pushed on an
// explicit stack and finalized once all of its direct members are resolved
// or flagged. A member still in the resolving state when its parent is
// finalized lies on the current path and is reported as a cycle.
func (g *graph) resolve(r resolver) []issue {
	var issues []issue
	for root := 0; root < len(g.nodes); root++ {
		if g.nodes[root].state != unvisited {
			continue
		}
		g.nodes[root].state = resolving
		stack := []int{root}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if next, ok := g.nextUnvisited(top, r); ok {
				g.nodes[next].state = resolving
				stack = append(stack, next)
				continue
			}
			issues = append(issues, g.finalize(top, r)...)
			stack = stack[:len(stack)-1]
		}
	}
	return issues
}

func (g *graph) nextUnvisited(i int, r resolver) (int, bool) {
	for _, m := range g.nodes[i].members {
		if r.reject != nil && r.reject(m) != "" {
			continue
		}
		if j, ok := g.index[m.Name]; ok && g.nodes[j].state == unvisited {
			return j, true
		}
	}
	return 0, false
}

func (g *graph) finalize(i int, r resolver) []issue {
	var issues []issue
	name := g.nodes[i].name
	seen := make(map[int]bool)
	var leaves []int
	for _, m := range g.nodes[i].members {
		if r.reject != nil {
			if reason := r.reject(m); reason != "" {
				issues = append(issues, issue{member: m.Name, group: name, reason: reason})
				continue
			}
		}
		j, ok := g.index[m.Name]
		if !ok && r.fallback != nil && r.fallback(m.Name) {
			j, ok = g.add(m.Name, false, nil)
		}
		if !ok {
			issues = append(issues, issue{member: m.Name, group: name, reason: ReasonNotFound})
			continue
		}
		switch {
		case g.nodes[j].state == resolving:
			issues = append(issues, issue{member: m.Name, group: name, reason: ReasonCyclic})
			continue
		case g.nodes[j].group:
			for _, leaf := range g.nodes[j].leaves {
				if !seen[leaf] {
					seen[leaf] = true
					leaves = append(leaves, leaf)
				}
			}
		default:
			if !seen[j] {
				seen[j] = true
				leaves = append(leaves, j)
			}
		}
	}
	if len(leaves) == 0 {
		issues = append(issues, issue{member: name, reason: ReasonEmpty})
	}
	g.nodes[i].leaves = leaves
	g.nodes[i].state = resolved
	return issues
}
