package model

import (
	"fmt"
	"time"
)

// TargetType selects where a mapped value is written in the downstream request
type TargetType string

const (
	TargetHeader TargetType = "header"
	TargetParam  TargetType = "param"
	TargetURL    TargetType = "url"
	TargetBody   TargetType = "body"
)

// ParseTargetType validates a target type name
func ParseTargetType(s string) (TargetType, error) {
	switch t := TargetType(s); t {
	case TargetHeader, TargetParam, TargetURL, TargetBody:
		return t, nil
	}
	return "", fmt.Errorf("unsupported target type: %s (use header, param, url or body)", s)
}

// ParameterMapping extracts one value from an upstream response body and
// writes it into the downstream request
type ParameterMapping struct {
	ID             string     `json:"id" yaml:"id"`
	SourceJSONPath string     `json:"sourceJsonPath" yaml:"sourceJsonPath"`
	TargetField    string     `json:"targetField" yaml:"targetField"`
	TargetType     TargetType `json:"targetType" yaml:"targetType"`
}

// NewParameterMapping creates a mapping with a fresh identity
func NewParameterMapping(sourcePath, targetField string, targetType TargetType) (ParameterMapping, error) {
	if sourcePath == "" || targetField == "" {
		return ParameterMapping{}, ErrMappingIncomplete
	}
	return ParameterMapping{
		ID:             NewID(),
		SourceJSONPath: sourcePath,
		TargetField:    targetField,
		TargetType:     targetType,
	}, nil
}

// Position is the canvas location of a node. It has no effect on execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// WorkflowNode is one request in a workflow graph
type WorkflowNode struct {
	ID       string   `json:"id" yaml:"id"`
	Request  Request  `json:"request" yaml:"request"`
	Position Position `json:"position" yaml:"position"`
}

// WorkflowEdge is a dependency from Source to Target carrying data mappings
type WorkflowEdge struct {
	ID       string             `json:"id" yaml:"id"`
	Source   string             `json:"source" yaml:"source"`
	Target   string             `json:"target" yaml:"target"`
	Mappings []ParameterMapping `json:"mappings" yaml:"mappings"`
}

// Workflow is a directed graph of request nodes
type Workflow struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Nodes     []WorkflowNode `json:"nodes" yaml:"nodes"`
	Edges     []WorkflowEdge `json:"edges" yaml:"edges"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// NewWorkflow creates an empty workflow
func NewWorkflow(name string) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:        NewID(),
		Name:      name,
		Nodes:     []WorkflowNode{},
		Edges:     []WorkflowEdge{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Rename changes the workflow name
func (w *Workflow) Rename(name string) {
	w.Name = name
	w.touch()
}

// AddNode adds a copy of req with a fresh identity
func (w *Workflow) AddNode(req Request, pos Position) WorkflowNode {
	req = req.Clone()
	req.ID = NewID()
	node := WorkflowNode{
		ID:       NewID(),
		Request:  req,
		Position: pos,
	}
	w.Nodes = append(w.Nodes, node)
	w.touch()
	return node
}

// UpdateNode replaces the request of a node
func (w *Workflow) UpdateNode(nodeID string, req Request) error {
	i := w.nodeIndex(nodeID)
	if i < 0 {
		return ErrNodeNotFound
	}
	req = req.Clone()
	req.UpdatedAt = time.Now().UTC()
	w.Nodes[i].Request = req
	w.touch()
	return nil
}

// UpdateNodePosition moves a node on the canvas
func (w *Workflow) UpdateNodePosition(nodeID string, pos Position) error {
	i := w.nodeIndex(nodeID)
	if i < 0 {
		return ErrNodeNotFound
	}
	w.Nodes[i].Position = pos
	w.touch()
	return nil
}

// RemoveNode deletes a node and every edge touching it
func (w *Workflow) RemoveNode(nodeID string) error {
	i := w.nodeIndex(nodeID)
	if i < 0 {
		return ErrNodeNotFound
	}
	w.Nodes = append(w.Nodes[:i], w.Nodes[i+1:]...)

	edges := w.Edges[:0]
	for _, e := range w.Edges {
		if e.Source != nodeID && e.Target != nodeID {
			edges = append(edges, e)
		}
	}
	w.Edges = edges
	w.touch()
	return nil
}

// AddEdge connects source to target. At most one edge exists per ordered
// pair; on a duplicate the existing edge is returned with ErrDuplicateEdge.
func (w *Workflow) AddEdge(source, target string) (WorkflowEdge, error) {
	if w.nodeIndex(source) < 0 {
		return WorkflowEdge{}, fmt.Errorf("source %s: %w", source, ErrNodeNotFound)
	}
	if w.nodeIndex(target) < 0 {
		return WorkflowEdge{}, fmt.Errorf("target %s: %w", target, ErrNodeNotFound)
	}
	if source == target {
		return WorkflowEdge{}, ErrSelfEdge
	}
	for _, e := range w.Edges {
		if e.Source == source && e.Target == target {
			return e, ErrDuplicateEdge
		}
	}

	edge := WorkflowEdge{
		ID:       NewID(),
		Source:   source,
		Target:   target,
		Mappings: []ParameterMapping{},
	}
	w.Edges = append(w.Edges, edge)
	w.touch()
	return edge, nil
}

// RemoveEdge deletes an edge
func (w *Workflow) RemoveEdge(edgeID string) error {
	i := w.edgeIndex(edgeID)
	if i < 0 {
		return ErrEdgeNotFound
	}
	w.Edges = append(w.Edges[:i], w.Edges[i+1:]...)
	w.touch()
	return nil
}

// UpdateEdgeMappings replaces the mappings carried by an edge
func (w *Workflow) UpdateEdgeMappings(edgeID string, mappings []ParameterMapping) error {
	i := w.edgeIndex(edgeID)
	if i < 0 {
		return ErrEdgeNotFound
	}
	w.Edges[i].Mappings = append([]ParameterMapping{}, mappings...)
	w.touch()
	return nil
}

// Node returns the node with the given id
func (w *Workflow) Node(nodeID string) (*WorkflowNode, bool) {
	i := w.nodeIndex(nodeID)
	if i < 0 {
		return nil, false
	}
	return &w.Nodes[i], true
}

// Edge returns the edge with the given id
func (w *Workflow) Edge(edgeID string) (*WorkflowEdge, bool) {
	i := w.edgeIndex(edgeID)
	if i < 0 {
		return nil, false
	}
	return &w.Edges[i], true
}

// EdgeBetween returns the edge from source to target, if any
func (w *Workflow) EdgeBetween(source, target string) (*WorkflowEdge, bool) {
	for i := range w.Edges {
		if w.Edges[i].Source == source && w.Edges[i].Target == target {
			return &w.Edges[i], true
		}
	}
	return nil, false
}

// IncomingEdges returns the edges targeting nodeID in edge-list order
func (w *Workflow) IncomingEdges(nodeID string) []WorkflowEdge {
	var in []WorkflowEdge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

func (w *Workflow) nodeIndex(nodeID string) int {
	for i := range w.Nodes {
		if w.Nodes[i].ID == nodeID {
			return i
		}
	}
	return -1
}

func (w *Workflow) edgeIndex(edgeID string) int {
	for i := range w.Edges {
		if w.Edges[i].ID == edgeID {
			return i
		}
	}
	return -1
}

func (w *Workflow) touch() {
	w.UpdatedAt = time.Now().UTC()
}
