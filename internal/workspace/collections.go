package workspace

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
	"github.com/pyhu26/post-woman/internal/storage"
)

// Collections manages saved request collections
type Collections struct {
	docs documents[model.Collection]
}

// NewCollections returns a collection manager over store
func NewCollections(store DocumentStore, log *zap.Logger) *Collections {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collections{docs: documents[model.Collection]{
		store: store,
		ns:    storage.NamespaceCollections,
		kind:  "collection",
		id:    func(c *model.Collection) string { return c.ID },
		name:  func(c *model.Collection) string { return c.Name },
		log:   log,
	}}
}

func (m *Collections) List() ([]model.Collection, error) {
	return m.docs.list()
}

func (m *Collections) Get(ref string) (*model.Collection, error) {
	return m.docs.get(ref)
}

func (m *Collections) Create(name string) (*model.Collection, error) {
	c := model.NewCollection(name)
	if err := m.docs.add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreate returns the named collection, creating it when missing
func (m *Collections) GetOrCreate(name string) (*model.Collection, error) {
	c, err := m.Get(name)
	if errors.Is(err, ErrNotFound) {
		return m.Create(name)
	}
	return c, err
}

func (m *Collections) Rename(ref, name string) (*model.Collection, error) {
	return m.docs.rename(ref, name, (*model.Collection).Rename)
}

func (m *Collections) Delete(ref string) (*model.Collection, error) {
	return m.docs.remove(ref)
}

// AddFolder creates a folder at the root or under parent (id or name)
func (m *Collections) AddFolder(ref, parent, name string) (model.Folder, error) {
	var folder model.Folder
	_, err := m.docs.update(ref, func(c *model.Collection) error {
		var err error
		folder, err = c.AddFolder(parent, name)
		return err
	})
	return folder, err
}

func (m *Collections) DeleteFolder(ref, folderID string) error {
	_, err := m.docs.update(ref, func(c *model.Collection) error {
		return c.DeleteFolder(folderID)
	})
	return err
}

// AddRequest stores a copy of req at the root or in folder
func (m *Collections) AddRequest(ref, folder string, req model.Request) (model.Request, error) {
	var saved model.Request
	_, err := m.docs.update(ref, func(c *model.Collection) error {
		var err error
		saved, err = c.AddRequest(folder, req)
		return err
	})
	return saved, err
}

func (m *Collections) UpdateRequest(ref string, req model.Request) error {
	_, err := m.docs.update(ref, func(c *model.Collection) error {
		return c.UpdateRequest(req)
	})
	return err
}

// DeleteRequest removes a request by id or name
func (m *Collections) DeleteRequest(ref, reqRef string) error {
	_, err := m.docs.update(ref, func(c *model.Collection) error {
		r := c.FindRequest(reqRef)
		if r == nil {
			return fmt.Errorf("request %q: %w", reqRef, model.ErrRequestNotFound)
		}
		return c.DeleteRequest(r.ID)
	})
	return err
}

// FindRequest returns a copy of a request by id or name
func (m *Collections) FindRequest(ref, reqRef string) (model.Request, error) {
	c, err := m.Get(ref)
	if err != nil {
		return model.Request{}, err
	}
	r := c.FindRequest(reqRef)
	if r == nil {
		return model.Request{}, fmt.Errorf("request %q: %w", reqRef, model.ErrRequestNotFound)
	}
	return r.Clone(), nil
}

func (m *Collections) Export(ref string, w io.Writer) error {
	return m.docs.export(ref, w)
}
