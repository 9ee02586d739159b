// Package workspace loads, mutates and saves the user's chains, workflows
// and collections. Every mutation is saved before it returns.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAmbiguousName = errors.New("name matches more than one item")
	ErrDuplicateName = errors.New("name already in use")
	ErrDuplicateID   = errors.New("id already in use")
	ErrEmptyName     = errors.New("name must not be empty")
)

// DocumentStore persists one document per namespace
type DocumentStore interface {
	Load(namespace string, v any) (bool, error)
	Save(namespace string, v any) error
}

// documents is a named list of T stored under one namespace
type documents[T any] struct {
	store DocumentStore
	ns    string
	kind  string
	id    func(*T) string
	name  func(*T) string
	log   *zap.Logger
}

func (d *documents[T]) load() ([]T, error) {
	var items []T
	if _, err := d.store.Load(d.ns, &items); err != nil {
		return nil, fmt.Errorf("failed to load %ss: %w", d.kind, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (d *documents[T]) save(items []T) error {
	if err := d.store.Save(d.ns, items); err != nil {
		return fmt.Errorf("failed to save %ss: %w", d.kind, err)
	}
	return nil
}

// find resolves ref as an id first, then as a unique name
func (d *documents[T]) find(items []T, ref string) (int, error) {
	for i := range items {
		if d.id(&items[i]) == ref {
			return i, nil
		}
	}
	found := -1
	for i := range items {
		if d.name(&items[i]) == ref {
			if found >= 0 {
				return -1, fmt.Errorf("%s %q: %w", d.kind, ref, ErrAmbiguousName)
			}
			found = i
		}
	}
	if found < 0 {
		return -1, fmt.Errorf("%s %q: %w", d.kind, ref, ErrNotFound)
	}
	return found, nil
}

func (d *documents[T]) checkName(items []T, name, exceptID string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	for i := range items {
		if d.name(&items[i]) == name && d.id(&items[i]) != exceptID {
			return fmt.Errorf("%s %q: %w", d.kind, name, ErrDuplicateName)
		}
	}
	return nil
}

func (d *documents[T]) list() ([]T, error) {
	return d.load()
}

func (d *documents[T]) get(ref string) (*T, error) {
	items, err := d.load()
	if err != nil {
		return nil, err
	}
	i, err := d.find(items, ref)
	if err != nil {
		return nil, err
	}
	return &items[i], nil
}

func (d *documents[T]) add(item *T) error {
	items, err := d.load()
	if err != nil {
		return err
	}
	if err := d.checkName(items, d.name(item), d.id(item)); err != nil {
		return err
	}
	for i := range items {
		if d.id(&items[i]) == d.id(item) {
			return fmt.Errorf("%s id %q: %w", d.kind, d.id(item), ErrDuplicateID)
		}
	}
	if err := d.save(append(items, *item)); err != nil {
		return err
	}
	d.log.Debug("Created", zap.String("kind", d.kind), zap.String("id", d.id(item)), zap.String("name", d.name(item)))
	return nil
}

// update applies fn to the item named by ref and saves the result. Nothing
// is saved when fn fails.
func (d *documents[T]) update(ref string, fn func(*T) error) (*T, error) {
	items, err := d.load()
	if err != nil {
		return nil, err
	}
	i, err := d.find(items, ref)
	if err != nil {
		return nil, err
	}
	if err := fn(&items[i]); err != nil {
		return nil, err
	}
	if err := d.save(items); err != nil {
		return nil, err
	}
	return &items[i], nil
}

func (d *documents[T]) rename(ref, name string, set func(*T, string)) (*T, error) {
	items, err := d.load()
	if err != nil {
		return nil, err
	}
	i, err := d.find(items, ref)
	if err != nil {
		return nil, err
	}
	if err := d.checkName(items, name, d.id(&items[i])); err != nil {
		return nil, err
	}
	set(&items[i], name)
	if err := d.save(items); err != nil {
		return nil, err
	}
	return &items[i], nil
}

func (d *documents[T]) remove(ref string) (*T, error) {
	items, err := d.load()
	if err != nil {
		return nil, err
	}
	i, err := d.find(items, ref)
	if err != nil {
		return nil, err
	}
	removed := items[i]
	if err := d.save(append(items[:i], items[i+1:]...)); err != nil {
		return nil, err
	}
	d.log.Debug("Deleted", zap.String("kind", d.kind), zap.String("id", d.id(&removed)))
	return &removed, nil
}

// export writes the item as YAML
func (d *documents[T]) export(ref string, w io.Writer) error {
	item, err := d.get(ref)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(item); err != nil {
		return fmt.Errorf("failed to encode %s: %w", d.kind, err)
	}
	return enc.Close()
}

func decodeYAML[T any](r io.Reader, kind string) (*T, error) {
	var item T
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return &item, nil
}
