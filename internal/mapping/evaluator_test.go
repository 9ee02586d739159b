package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhu26/post-woman/internal/model"
)

func mapping(path, field string, target model.TargetType) model.ParameterMapping {
	return model.ParameterMapping{
		ID:             model.NewID(),
		SourceJSONPath: path,
		TargetField:    field,
		TargetType:     target,
	}
}

func headersNamed(req model.Request, key string) []model.KeyValue {
	var out []model.KeyValue
	for _, h := range req.Headers {
		if h.Key == key {
			out = append(out, h)
		}
	}
	return out
}

func TestApply_HeaderInsertThenUpdateInPlace(t *testing.T) {
	e := NewEvaluator(nil)
	body := `{"data":{"token":"abc123"}}`
	m := []model.ParameterMapping{mapping("$.data.token", "Authorization", model.TargetHeader)}
	req := model.NewRequest("me", model.MethodGet, "https://api.test/me")

	out := e.Apply(req, m, body)
	auth := headersNamed(out, "Authorization")
	require.Len(t, auth, 1)
	assert.Equal(t, "abc123", auth[0].Value)
	assert.True(t, auth[0].Enabled)
	assert.NotEmpty(t, auth[0].ID)

	// an existing header is updated in place
	existing := model.NewKeyValue("Authorization", "stale", false)
	req.Headers = []model.KeyValue{model.NewKeyValue("Accept", "*/*", true), existing}
	out = e.Apply(req, m, body)
	require.Len(t, out.Headers, 2)
	assert.Equal(t, existing.ID, out.Headers[1].ID)
	assert.Equal(t, "abc123", out.Headers[1].Value)
	assert.False(t, out.Headers[1].Enabled)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodPost, "https://api.test/{{id}}")
	req.Headers = []model.KeyValue{model.NewKeyValue("X-Id", "old", true)}
	req.Body = `{"id":"{{id}}"}`
	mappings := []model.ParameterMapping{
		mapping("$.id", "X-Id", model.TargetHeader),
		mapping("$.id", "id", model.TargetURL),
		mapping("$.id", "id", model.TargetBody),
		mapping("$.id", "id", model.TargetParam),
	}

	out := e.Apply(req, mappings, `{"id":7}`)

	assert.Equal(t, "old", req.Headers[0].Value)
	assert.Empty(t, req.Params)
	assert.Equal(t, "https://api.test/{{id}}", req.URL)
	assert.Equal(t, "https://api.test/7", out.URL)
	assert.Equal(t, `{"id":"7"}`, out.Body)
	assert.Equal(t, "7", out.Headers[0].Value)
	require.Len(t, out.Params, 1)
	assert.Equal(t, "id", out.Params[0].Key)
}

func TestApply_TemplateSubstitution(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test/{{id}}/items/{{id}}?page={{page}}")

	out := e.Apply(req, []model.ParameterMapping{mapping("$.id", "id", model.TargetURL)}, `{"id":"42"}`)

	assert.Equal(t, "https://api.test/42/items/42?page={{page}}", out.URL)
}

func TestApply_NonJSONBodyLeavesRequestUnchanged(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test/{{id}}")

	out := e.Apply(req, []model.ParameterMapping{mapping("$.id", "id", model.TargetURL)}, "<html>oops</html>")

	assert.Equal(t, req.URL, out.URL)
	assert.Empty(t, out.Headers)
}

func TestApply_EmptyBodyLeavesRequestUnchanged(t *testing.T) {
	e := NewEvaluator(nil)
	mappings := []model.ParameterMapping{
		mapping("$.token", "Authorization", model.TargetHeader),
		mapping("$.id", "id", model.TargetURL),
	}

	for _, body := range []string{"", "   ", "\n"} {
		req := model.NewRequest("r", model.MethodGet, "https://api.test/{{id}}")
		out := e.Apply(req, mappings, body)

		assert.Equal(t, "https://api.test/{{id}}", out.URL, "body %q", body)
		assert.Empty(t, out.Headers, "body %q", body)
	}
}

func TestApply_BadMappingDoesNotAbortOthers(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test/{{id}}")
	mappings := []model.ParameterMapping{
		mapping("$[?(", "X-Broken", model.TargetHeader),
		mapping("$.id", "id", model.TargetType("cookie")),
		mapping("$.id", "", model.TargetHeader),
		mapping("$.id", "id", model.TargetURL),
	}

	out := e.Apply(req, mappings, `{"id":"ok"}`)

	assert.Equal(t, "https://api.test/ok", out.URL)
	assert.Empty(t, out.Headers)
}

func TestApply_NoMatchWritesEmptyString(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test/{{id}}")

	out := e.Apply(req, []model.ParameterMapping{mapping("$.missing", "id", model.TargetURL)}, `{"id":"x"}`)

	assert.Equal(t, "https://api.test/", out.URL)
}

func TestApply_LaterMappingWins(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test")
	mappings := []model.ParameterMapping{
		mapping("$.a", "X-Value", model.TargetHeader),
		mapping("$.b", "X-Value", model.TargetHeader),
	}

	out := e.Apply(req, mappings, `{"a":"first","b":"second"}`)

	require.Len(t, out.Headers, 1)
	assert.Equal(t, "second", out.Headers[0].Value)
}

func TestApply_DuplicateKeysAllUpdated(t *testing.T) {
	e := NewEvaluator(nil)
	req := model.NewRequest("r", model.MethodGet, "https://api.test")
	req.Params = []model.KeyValue{
		model.NewKeyValue("tag", "a", true),
		model.NewKeyValue("tag", "b", false),
	}

	out := e.Apply(req, []model.ParameterMapping{mapping("$.tag", "tag", model.TargetParam)}, `{"tag":"z"}`)

	require.Len(t, out.Params, 2)
	assert.Equal(t, "z", out.Params[0].Value)
	assert.Equal(t, "z", out.Params[1].Value)
}

func TestExtract(t *testing.T) {
	e := NewEvaluator(nil)
	body := `{"data":{"items":[{"id":1,"ok":true},{"id":2.5}],"meta":{"b":2,"a":1},"none":null}}`

	tests := []struct {
		name string
		path string
		want string
	}{
		{"integer", "$.data.items[0].id", "1"},
		{"float", "$.data.items[1].id", "2.5"},
		{"bool", "$.data.items[0].ok", "true"},
		{"null", "$.data.none", "null"},
		{"recursive descent", "$..ok", "true"},
		{"object as compact json", "$.data.meta", `{"a":1,"b":2}`},
		{"gjson dot path", "data.items.1.id", "2.5"},
		{"gjson missing", "data.nope", ""},
		{"jsonpath missing", "$.data.nope", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(body, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := e.Extract("not json", "$.a")
	assert.Error(t, err)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "42", Stringify(int64(42)))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "0.1", Stringify(0.1))
	assert.Equal(t, "1e+21", Stringify(1e21))
	assert.Equal(t, "false", Stringify(false))
	assert.Equal(t, `[1,"a"]`, Stringify([]any{int64(1), "a"}))
	assert.Equal(t, `{"h":"<x>&"}`, Stringify(map[string]any{"h": "<x>&"}))
}
