package workspace

import (
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
	"github.com/pyhu26/post-woman/internal/storage"
)

// Chains manages saved chains
type Chains struct {
	docs documents[model.Chain]
}

// NewChains returns a chain manager over store
func NewChains(store DocumentStore, log *zap.Logger) *Chains {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chains{docs: documents[model.Chain]{
		store: store,
		ns:    storage.NamespaceChains,
		kind:  "chain",
		id:    func(c *model.Chain) string { return c.ID },
		name:  func(c *model.Chain) string { return c.Name },
		log:   log,
	}}
}

// List returns all chains in creation order
func (m *Chains) List() ([]model.Chain, error) {
	return m.docs.list()
}

// Get finds a chain by id or name
func (m *Chains) Get(ref string) (*model.Chain, error) {
	return m.docs.get(ref)
}

// Create adds an empty chain
func (m *Chains) Create(name string) (*model.Chain, error) {
	c := model.NewChain(name)
	if err := m.docs.add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Rename changes a chain's name
func (m *Chains) Rename(ref, name string) (*model.Chain, error) {
	return m.docs.rename(ref, name, (*model.Chain).Rename)
}

// Delete removes a chain
func (m *Chains) Delete(ref string) (*model.Chain, error) {
	return m.docs.remove(ref)
}

// AddStep appends a copy of req to the chain
func (m *Chains) AddStep(ref string, req model.Request) (model.ChainStep, error) {
	var step model.ChainStep
	_, err := m.docs.update(ref, func(c *model.Chain) error {
		step = c.AddStep(req)
		return nil
	})
	return step, err
}

// UpdateStep replaces the request of a step
func (m *Chains) UpdateStep(ref, stepRef string, req model.Request) error {
	_, err := m.docs.update(ref, func(c *model.Chain) error {
		step, err := ResolveStep(c, stepRef)
		if err != nil {
			return err
		}
		return c.UpdateStep(step.ID, req)
	})
	return err
}

// RemoveStep deletes a step
func (m *Chains) RemoveStep(ref, stepRef string) error {
	_, err := m.docs.update(ref, func(c *model.Chain) error {
		step, err := ResolveStep(c, stepRef)
		if err != nil {
			return err
		}
		return c.RemoveStep(step.ID)
	})
	return err
}

// ReorderSteps moves the step at from to position to (both zero-based)
func (m *Chains) ReorderSteps(ref string, from, to int) (*model.Chain, error) {
	return m.docs.update(ref, func(c *model.Chain) error {
		return c.ReorderSteps(from, to)
	})
}

// Export writes the chain as YAML
func (m *Chains) Export(ref string, w io.Writer) error {
	return m.docs.export(ref, w)
}

// Import reads a YAML chain and saves it. A missing or clashing id is
// replaced; a clashing name is an error.
func (m *Chains) Import(r io.Reader) (*model.Chain, error) {
	c, err := decodeYAML[model.Chain](r, "chain")
	if err != nil {
		return nil, err
	}
	if _, err := m.docs.get(c.ID); c.ID == "" || err == nil {
		c.ID = model.NewID()
	}
	if c.Steps == nil {
		c.Steps = []model.ChainStep{}
	}
	for i := range c.Steps {
		if c.Steps[i].ID == "" {
			c.Steps[i].ID = model.NewID()
		}
		c.Steps[i].Order = i
	}
	if err := m.docs.add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveStep finds a step by id, 1-based position or request name
func ResolveStep(c *model.Chain, ref string) (*model.ChainStep, error) {
	if s, ok := c.Step(ref); ok {
		return s, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(c.Steps) {
			return nil, fmt.Errorf("step %d: %w", n, model.ErrIndexOutOfRange)
		}
		return &c.Steps[n-1], nil
	}
	var found *model.ChainStep
	for i := range c.Steps {
		if c.Steps[i].Request.Name == ref {
			if found != nil {
				return nil, fmt.Errorf("step %q: %w", ref, ErrAmbiguousName)
			}
			found = &c.Steps[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("step %q: %w", ref, model.ErrStepNotFound)
	}
	return found, nil
}
