package workspace

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
	"github.com/pyhu26/post-woman/internal/storage"
)

// Workflows manages saved workflows
type Workflows struct {
	docs documents[model.Workflow]
}

// NewWorkflows returns a workflow manager over store
func NewWorkflows(store DocumentStore, log *zap.Logger) *Workflows {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflows{docs: documents[model.Workflow]{
		store: store,
		ns:    storage.NamespaceWorkflows,
		kind:  "workflow",
		id:    func(w *model.Workflow) string { return w.ID },
		name:  func(w *model.Workflow) string { return w.Name },
		log:   log,
	}}
}

func (m *Workflows) List() ([]model.Workflow, error) {
	return m.docs.list()
}

func (m *Workflows) Get(ref string) (*model.Workflow, error) {
	return m.docs.get(ref)
}

func (m *Workflows) Create(name string) (*model.Workflow, error) {
	w := model.NewWorkflow(name)
	if err := m.docs.add(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (m *Workflows) Rename(ref, name string) (*model.Workflow, error) {
	return m.docs.rename(ref, name, (*model.Workflow).Rename)
}

func (m *Workflows) Delete(ref string) (*model.Workflow, error) {
	return m.docs.remove(ref)
}

// AddNode adds a copy of req as a new node
func (m *Workflows) AddNode(ref string, req model.Request, pos model.Position) (model.WorkflowNode, error) {
	var node model.WorkflowNode
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		node = w.AddNode(req, pos)
		return nil
	})
	return node, err
}

func (m *Workflows) UpdateNode(ref, nodeRef string, req model.Request) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		n, err := ResolveNode(w, nodeRef)
		if err != nil {
			return err
		}
		return w.UpdateNode(n.ID, req)
	})
	return err
}

// MoveNode changes a node's canvas position
func (m *Workflows) MoveNode(ref, nodeRef string, pos model.Position) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		n, err := ResolveNode(w, nodeRef)
		if err != nil {
			return err
		}
		return w.UpdateNodePosition(n.ID, pos)
	})
	return err
}

// RemoveNode deletes a node and its edges
func (m *Workflows) RemoveNode(ref, nodeRef string) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		n, err := ResolveNode(w, nodeRef)
		if err != nil {
			return err
		}
		return w.RemoveNode(n.ID)
	})
	return err
}

// AddEdge connects two nodes. Connecting an already connected pair returns
// the existing edge with model.ErrDuplicateEdge.
func (m *Workflows) AddEdge(ref, sourceRef, targetRef string) (model.WorkflowEdge, error) {
	var edge model.WorkflowEdge
	var dup bool
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		src, err := ResolveNode(w, sourceRef)
		if err != nil {
			return err
		}
		tgt, err := ResolveNode(w, targetRef)
		if err != nil {
			return err
		}
		edge, err = w.AddEdge(src.ID, tgt.ID)
		if errors.Is(err, model.ErrDuplicateEdge) {
			dup = true
			return nil
		}
		return err
	})
	if err == nil && dup {
		err = model.ErrDuplicateEdge
	}
	return edge, err
}

// RemoveEdge deletes an edge by id or by "source->target" node refs
func (m *Workflows) RemoveEdge(ref, edgeRef string) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		e, err := ResolveEdge(w, edgeRef)
		if err != nil {
			return err
		}
		return w.RemoveEdge(e.ID)
	})
	return err
}

// SetEdgeMappings replaces the mappings of an edge
func (m *Workflows) SetEdgeMappings(ref, edgeRef string, mappings []model.ParameterMapping) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		e, err := ResolveEdge(w, edgeRef)
		if err != nil {
			return err
		}
		return w.UpdateEdgeMappings(e.ID, mappings)
	})
	return err
}

// AddMapping appends one mapping to an edge
func (m *Workflows) AddMapping(ref, edgeRef string, mapping model.ParameterMapping) error {
	_, err := m.docs.update(ref, func(w *model.Workflow) error {
		e, err := ResolveEdge(w, edgeRef)
		if err != nil {
			return err
		}
		return w.UpdateEdgeMappings(e.ID, append(append([]model.ParameterMapping{}, e.Mappings...), mapping))
	})
	return err
}

func (m *Workflows) Export(ref string, w io.Writer) error {
	return m.docs.export(ref, w)
}

// Import reads a YAML workflow and saves it. Edges must reference nodes of
// the same workflow.
func (m *Workflows) Import(r io.Reader) (*model.Workflow, error) {
	w, err := decodeYAML[model.Workflow](r, "workflow")
	if err != nil {
		return nil, err
	}
	if _, err := m.docs.get(w.ID); w.ID == "" || err == nil {
		w.ID = model.NewID()
	}
	if w.Nodes == nil {
		w.Nodes = []model.WorkflowNode{}
	}
	if w.Edges == nil {
		w.Edges = []model.WorkflowEdge{}
	}
	nodeIDs := make(map[string]bool, len(w.Nodes))
	for i := range w.Nodes {
		if w.Nodes[i].ID == "" {
			w.Nodes[i].ID = model.NewID()
		}
		if nodeIDs[w.Nodes[i].ID] {
			return nil, fmt.Errorf("node %s: %w", w.Nodes[i].ID, ErrDuplicateID)
		}
		nodeIDs[w.Nodes[i].ID] = true
	}
	type pair struct{ source, target string }
	pairs := make(map[pair]bool, len(w.Edges))
	edgeIDs := make(map[string]bool, len(w.Edges))
	for i, e := range w.Edges {
		if !nodeIDs[e.Source] {
			return nil, fmt.Errorf("edge %s source %s: %w", e.ID, e.Source, model.ErrNodeNotFound)
		}
		if !nodeIDs[e.Target] {
			return nil, fmt.Errorf("edge %s target %s: %w", e.ID, e.Target, model.ErrNodeNotFound)
		}
		if e.Source == e.Target {
			return nil, fmt.Errorf("edge %s: %w", e.ID, model.ErrSelfEdge)
		}
		p := pair{e.Source, e.Target}
		if pairs[p] {
			return nil, fmt.Errorf("edge %s->%s: %w", e.Source, e.Target, model.ErrDuplicateEdge)
		}
		pairs[p] = true
		if e.ID == "" {
			w.Edges[i].ID = model.NewID()
		}
		if edgeIDs[w.Edges[i].ID] {
			return nil, fmt.Errorf("edge %s: %w", w.Edges[i].ID, ErrDuplicateID)
		}
		edgeIDs[w.Edges[i].ID] = true
		if w.Edges[i].Mappings == nil {
			w.Edges[i].Mappings = []model.ParameterMapping{}
		}
	}
	if err := m.docs.add(w); err != nil {
		return nil, err
	}
	return w, nil
}

// ResolveNode finds a node by id or by its request name
func ResolveNode(w *model.Workflow, ref string) (*model.WorkflowNode, error) {
	if n, ok := w.Node(ref); ok {
		return n, nil
	}
	var found *model.WorkflowNode
	for i := range w.Nodes {
		if w.Nodes[i].Request.Name == ref {
			if found != nil {
				return nil, fmt.Errorf("node %q: %w", ref, ErrAmbiguousName)
			}
			found = &w.Nodes[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("node %q: %w", ref, model.ErrNodeNotFound)
	}
	return found, nil
}

// ResolveEdge finds an edge by id or by "source->target" node refs
func ResolveEdge(w *model.Workflow, ref string) (*model.WorkflowEdge, error) {
	if e, ok := w.Edge(ref); ok {
		return e, nil
	}
	src, tgt, ok := cutArrow(ref)
	if !ok {
		return nil, fmt.Errorf("edge %q: %w", ref, model.ErrEdgeNotFound)
	}
	s, err := ResolveNode(w, src)
	if err != nil {
		return nil, err
	}
	t, err := ResolveNode(w, tgt)
	if err != nil {
		return nil, err
	}
	e, ok := w.EdgeBetween(s.ID, t.ID)
	if !ok {
		return nil, fmt.Errorf("edge %q: %w", ref, model.ErrEdgeNotFound)
	}
	return e, nil
}

func cutArrow(ref string) (string, string, bool) {
	src, tgt, ok := strings.Cut(ref, "->")
	return src, tgt, ok && src != "" && tgt != ""
}
