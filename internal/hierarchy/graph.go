package hierarchy

import "fmt"

// Neighbor is one outgoing edge target in the adjacency form of the graph.
type Neighbor struct {
	RoleID  int64
	Inherit bool
}

// Graph maps parent role IDs to their child edges.
type Graph map[int64][]Neighbor

// BuildGraph folds an edge list into adjacency form.
func BuildGraph(edges []Edge) Graph {
	g := make(Graph, len(edges))
	for _, e := range edges {
		g[e.ParentRoleID] = append(g[e.ParentRoleID], Neighbor{RoleID: e.ChildRoleID, Inherit: e.InheritPermissions})
	}
	return g
}

// PathExists reports whether to is reachable from from walking edges in
// parent-to-child direction. Every edge counts here regardless of its
// inherit flag; acyclicity is a structural invariant of the graph.
func (g Graph) PathExists(from, to int64) bool {
	if from == to {
		return true
	}
	seen := map[int64]struct{}{from: {}}
	queue := []int64{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, n := range g[current] {
			if n.RoleID == to {
				return true
			}
			if _, ok := seen[n.RoleID]; ok {
				continue
			}
			seen[n.RoleID] = struct{}{}
			queue = append(queue, n.RoleID)
		}
	}
	return false
}

const (
	colorGrey = iota + 1
	colorBlack
)

// Closure returns root plus every role reachable from it along inheriting
// edges. A role reached through several paths is listed once. Meeting a
// node that is still on the walk stack means the stored graph holds a
// cycle, so resolution aborts with ErrIntegrity.
func (g Graph) Closure(root int64) ([]int64, error) {
	color := make(map[int64]int)
	var order []int64
	var visit func(id int64) error
	visit = func(id int64) error {
		switch color[id] {
		case colorGrey:
			return fmt.Errorf("%w: cycle through role %d", ErrIntegrity, id)
		case colorBlack:
			return nil
		}
		color[id] = colorGrey
		order = append(order, id)
		for _, n := range g[id] {
			if !n.Inherit {
				continue
			}
			if err := visit(n.RoleID); err != nil {
				return err
			}
		}
		color[id] = colorBlack
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// FindCycle scans the whole graph, all edges included, and returns one
// cycle as a closed role ID path. Nil means the graph is a DAG.
func (g Graph) FindCycle() []int64 {
	color := make(map[int64]int)
	var path []int64
	var cycle []int64
	var visit func(id int64) bool
	visit = func(id int64) bool {
		color[id] = colorGrey
		path = append(path, id)
		for _, n := range g[id] {
			switch color[n.RoleID] {
			case colorGrey:
				start := 0
				for i, v := range path {
					if v == n.RoleID {
						start = i
						break
					}
				}
				cycle = append(append([]int64{}, path[start:]...), n.RoleID)
				return true
			case colorBlack:
			default:
				if visit(n.RoleID) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = colorBlack
		return false
	}
	for id := range g {
		if color[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}
