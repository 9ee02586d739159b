package engine

import (
	"fmt"
	"strings"

	"github.com/pyhu26/post-woman/internal/model"
)

// Order is the resolved execution order of a workflow
type Order struct {
	IDs []string
	// Skipped holds nodes that never reached in-degree zero: cycle members
	// and everything downstream of them.
	Skipped []string
}

// Cyclic reports whether some nodes could not be ordered
func (o Order) Cyclic() bool {
	return len(o.Skipped) > 0
}

// CycleError is returned before a run when cyclic workflows are rejected
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow has a cycle; %d node(s) cannot be ordered: %s",
		len(e.NodeIDs), strings.Join(e.NodeIDs, ", "))
}

// ResolveOrder computes a topological order with Kahn's algorithm. The
// queue is seeded in node registration order so disconnected nodes keep
// that order. Edges that reference unknown nodes are ignored.
func ResolveOrder(nodes []model.WorkflowNode, edges []model.WorkflowEdge) Order {
	indeg := make(map[string]int, len(nodes))
	out := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = 0
	}
	for _, e := range edges {
		if _, ok := indeg[e.Source]; !ok {
			continue
		}
		if _, ok := indeg[e.Target]; !ok {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Target)
		indeg[e.Target]++
	}

	q := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			q = append(q, n.ID)
		}
	}

	order := Order{IDs: make([]string, 0, len(nodes))}
	for len(q) > 0 {
		v := q[0]
		q = q[1:]
		order.IDs = append(order.IDs, v)
		for _, u := range out[v] {
			indeg[u]--
			if indeg[u] == 0 {
				q = append(q, u)
			}
		}
	}

	if len(order.IDs) < len(nodes) {
		for _, n := range nodes {
			if indeg[n.ID] > 0 {
				order.Skipped = append(order.Skipped, n.ID)
			}
		}
	}
	return order
}
