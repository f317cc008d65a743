package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeys(t *testing.T) {
	got, err := Canonicalize(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(got))
}

// RFC 8785 orders keys by UTF-16 code units. Surrogate pairs start at
// 0xD800, below characters like U+FF61, while their UTF-8 encoding sorts
// the other way around. The emoji must come first.
func TestCanonicalize_UTF16KeyOrder(t *testing.T) {
	got, err := Canonicalize(map[string]any{"｡": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"｡\":1}", string(got))
}

func TestCanonicalize_Numbers(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"int":   float64(42),
		"neg":   float64(-7),
		"zero":  float64(0),
		"frac":  2.5,
		"large": float64(1 << 40),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"frac":2.5,"int":42,"large":1099511627776,"neg":-7,"zero":0}`, string(got))
}

func TestCanonicalize_NFCNormalizesStrings(t *testing.T) {
	composed, err := Canonicalize(map[string]any{"name": "café"})
	require.NoError(t, err)
	decomposed, err := Canonicalize(map[string]any{"name": "café"})
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed),
		"composed and decomposed forms canonicalize identically")
}

func TestCanonicalize_NoHTMLEscaping(t *testing.T) {
	got, err := Canonicalize(map[string]any{"q": "a < b && c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a < b && c > d"}`, string(got))
}

func TestCanonicalize_LineSeparatorsLiteral(t *testing.T) {
	got, err := Canonicalize(map[string]any{"s": "a b c"})
	require.NoError(t, err)
	assert.Equal(t, "{\"s\":\"a b c\"}", string(got))

	// A literal backslash followed by the text "u2028" must stay escaped.
	got, err = Canonicalize(map[string]any{"s": `a\u2028b`})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"a\\u2028b"}`, string(got))
}

func TestCanonicalize_NestedAndNull(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"list": []any{float64(1), "two", nil, true},
		"obj":  map[string]any{"y": nil, "x": false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,"two",null,true],"obj":{"x":false,"y":null}}`, string(got))
}

func TestCanonicalize_StructsViaJSONTags(t *testing.T) {
	type payload struct {
		Name  string         `json:"name"`
		Count int            `json:"count"`
		Skip  string         `json:"-"`
		Props map[string]any `json:"props,omitempty"`
	}
	got, err := Canonicalize(payload{Name: "n", Count: 3, Skip: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"name":"n"}`, string(got))
}
