// Package mapping threads values from an upstream response body into a
// downstream request according to declarative parameter mappings.
package mapping

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
)

// Evaluator applies parameter mappings. It is safe for concurrent use.
type Evaluator struct {
	paths *pathCache
	log   *zap.Logger
}

// NewEvaluator creates an evaluator with the default path cache size
func NewEvaluator(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		paths: newPathCache(DefaultPathCacheSize),
		log:   log,
	}
}

// Apply returns a copy of req with every mapping applied against
// sourceBody. The inputs are never modified. When sourceBody is not JSON
// the copy is returned unchanged. A mapping that fails is skipped without
// affecting the others; mappings run in list order so a later mapping to
// the same target wins.
func (e *Evaluator) Apply(req model.Request, mappings []model.ParameterMapping, sourceBody string) model.Request {
	out := req.Clone()
	if len(mappings) == 0 {
		return out
	}

	doc, err := ParseDocument(sourceBody)
	if err != nil {
		e.log.Debug("Skipping mappings, source body is not JSON", zap.Error(err))
		return out
	}

	for _, m := range mappings {
		if err := e.applyOne(&out, m, doc); err != nil {
			e.log.Debug("Skipping mapping",
				zap.String("mapping", m.ID),
				zap.String("path", m.SourceJSONPath),
				zap.Error(err),
			)
		}
	}
	return out
}

// Extract evaluates a single path against a body and returns the
// stringified first match, or "" when nothing matches.
func (e *Evaluator) Extract(body, path string) (string, error) {
	doc, err := ParseDocument(body)
	if err != nil {
		return "", err
	}
	v, ok, err := e.query(doc, path)
	if err != nil || !ok {
		return "", err
	}
	return Stringify(v), nil
}

func (e *Evaluator) applyOne(req *model.Request, m model.ParameterMapping, doc *Document) error {
	if m.TargetField == "" {
		return fmt.Errorf("mapping has no target field")
	}

	v, ok, err := e.query(doc, m.SourceJSONPath)
	if err != nil {
		return err
	}
	value := ""
	if ok {
		value = Stringify(v)
	}

	switch m.TargetType {
	case model.TargetHeader:
		req.Headers = upsert(req.Headers, m.TargetField, value)
	case model.TargetParam:
		req.Params = upsert(req.Params, m.TargetField, value)
	case model.TargetURL:
		req.URL = substitute(req.URL, m.TargetField, value)
	case model.TargetBody:
		req.Body = substitute(req.Body, m.TargetField, value)
	default:
		return fmt.Errorf("unsupported target type: %q", m.TargetType)
	}
	return nil
}

// query recovers from panics inside the path engine so a single bad
// expression cannot abort the remaining mappings.
func (e *Evaluator) query(doc *Document, path string) (v any, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, ok, err = nil, false, fmt.Errorf("evaluating %q: %v", path, r)
		}
	}()
	return e.paths.query(doc, path)
}

// upsert updates every entry with the given key in place, keeping identity,
// position and enabled flag. Without a match a new enabled entry is appended.
func upsert(entries []model.KeyValue, key, value string) []model.KeyValue {
	found := false
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			found = true
		}
	}
	if found {
		return entries
	}
	return append(entries, model.NewKeyValue(key, value, true))
}

// Placeholder returns the template token for a field, e.g. {{id}}
func Placeholder(field string) string {
	return "{{" + field + "}}"
}

func substitute(s, field, value string) string {
	return strings.ReplaceAll(s, Placeholder(field), value)
}
