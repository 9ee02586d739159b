package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/tidwall/gjson"
)

// DefaultPathCacheSize is the number of compiled JSONPath expressions kept
const DefaultPathCacheSize = 256

// Document is a parsed response body ready for path queries
type Document struct {
	raw  string
	data any
}

// ParseDocument parses a JSON response body
func ParseDocument(body string) (*Document, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("response body is not JSON: empty body")
	}
	data, err := oj.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("response body is not JSON: %w", err)
	}
	return &Document{raw: body, data: data}, nil
}

// pathCache compiles JSONPath expressions once per distinct string
type pathCache struct {
	cache *lru.Cache[string, jp.Expr]
}

func newPathCache(size int) *pathCache {
	if size <= 0 {
		size = DefaultPathCacheSize
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, jp.Expr](size)
	return &pathCache{cache: cache}
}

func (p *pathCache) compile(path string) (jp.Expr, error) {
	if expr, ok := p.cache.Get(path); ok {
		return expr, nil
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	p.cache.Add(path, expr)
	return expr, nil
}

// query evaluates path against doc and returns the first match.
// "$"-rooted paths are JSONPath; anything else uses gjson dot syntax
// (e.g. "data.items.0.id").
func (p *pathCache) query(doc *Document, path string) (any, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false, fmt.Errorf("empty path")
	}

	if !strings.HasPrefix(path, "$") {
		res := gjson.Get(doc.raw, path)
		if !res.Exists() {
			return nil, false, nil
		}
		return res.Value(), true, nil
	}

	expr, err := p.compile(path)
	if err != nil {
		return nil, false, err
	}
	matches := expr.Get(doc.data)
	if len(matches) == 0 {
		return nil, false, nil
	}
	return matches[0], true, nil
}

// Stringify renders an extracted JSON value as the text substituted into
// the target request.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return formatFloat(val)
	case []any, map[string]any:
		return oj.JSON(val, &oj.Options{Sort: true, HTMLUnsafe: true})
	default:
		return fmt.Sprint(val)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
