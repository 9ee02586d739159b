package model

import (
	"errors"
	"time"
)

var (
	ErrStepNotFound      = errors.New("step not found")
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrDuplicateEdge     = errors.New("edge already exists")
	ErrSelfEdge          = errors.New("edge source and target must differ")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrRequestNotFound   = errors.New("request not found")
	ErrFolderNotFound    = errors.New("folder not found")
	ErrMappingIncomplete = errors.New("mapping needs a source path and a target field")
)

// ChainStep is one request in a chain
type ChainStep struct {
	ID      string  `json:"id" yaml:"id"`
	Request Request `json:"request" yaml:"request"`
	Order   int     `json:"order" yaml:"order"`
}

// Chain is a linear, user-ordered sequence of requests
type Chain struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	Steps     []ChainStep `json:"steps" yaml:"steps"`
	CreatedAt time.Time   `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt" yaml:"updatedAt"`
}

// NewChain creates an empty chain
func NewChain(name string) *Chain {
	now := time.Now().UTC()
	return &Chain{
		ID:        NewID(),
		Name:      name,
		Steps:     []ChainStep{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Rename changes the chain name
func (c *Chain) Rename(name string) {
	c.Name = name
	c.touch()
}

// AddStep appends a copy of req with a fresh identity
func (c *Chain) AddStep(req Request) ChainStep {
	req = req.Clone()
	req.ID = NewID()
	step := ChainStep{
		ID:      NewID(),
		Request: req,
		Order:   len(c.Steps),
	}
	c.Steps = append(c.Steps, step)
	c.reindex()
	c.touch()
	return step
}

// UpdateStep replaces the request of a step
func (c *Chain) UpdateStep(stepID string, req Request) error {
	i := c.stepIndex(stepID)
	if i < 0 {
		return ErrStepNotFound
	}
	req = req.Clone()
	req.UpdatedAt = time.Now().UTC()
	c.Steps[i].Request = req
	c.touch()
	return nil
}

// RemoveStep deletes a step and re-derives the order of the rest
func (c *Chain) RemoveStep(stepID string) error {
	i := c.stepIndex(stepID)
	if i < 0 {
		return ErrStepNotFound
	}
	c.Steps = append(c.Steps[:i], c.Steps[i+1:]...)
	c.reindex()
	c.touch()
	return nil
}

// ReorderSteps moves the step at from to position to
func (c *Chain) ReorderSteps(from, to int) error {
	n := len(c.Steps)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfRange
	}
	step := c.Steps[from]
	steps := append(c.Steps[:from:from], c.Steps[from+1:]...)
	steps = append(steps[:to], append([]ChainStep{step}, steps[to:]...)...)
	c.Steps = steps
	c.reindex()
	c.touch()
	return nil
}

// Step returns the step with the given id
func (c *Chain) Step(stepID string) (*ChainStep, bool) {
	i := c.stepIndex(stepID)
	if i < 0 {
		return nil, false
	}
	return &c.Steps[i], true
}

func (c *Chain) stepIndex(stepID string) int {
	for i := range c.Steps {
		if c.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// reindex keeps Order a dense 0..n-1 sequence matching slice position
func (c *Chain) reindex() {
	for i := range c.Steps {
		c.Steps[i].Order = i
	}
}

func (c *Chain) touch() {
	c.UpdatedAt = time.Now().UTC()
}
