package guard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestPropertyPredicates(t *testing.T) {
	v := decode(t, `{"s":"x","b":true,"n":1.5,"o":{"a":1},"a":[1,2],"null":null}`)

	assert.True(t, IsDefinedObject(v))
	assert.True(t, IsString(v, "s"))
	assert.True(t, IsBoolean(v, "b"))
	assert.True(t, IsNumber(v, "n"))
	assert.True(t, IsObject(v, "o"))
	assert.True(t, IsArray(v, "a"))

	assert.False(t, IsString(v, "b"))
	assert.False(t, IsBoolean(v, "s"))
	assert.False(t, IsNumber(v, "missing"))
	assert.False(t, IsObject(v, "null"))
	assert.False(t, IsObject(v, "a"))
	assert.False(t, IsArray(v, "o"))
}

func TestPredicatesOnNonObjects(t *testing.T) {
	for _, v := range []any{nil, "x", 1.0, true, []any{"s"}, map[string]any(nil)} {
		assert.False(t, IsDefinedObject(v), "%#v", v)
		assert.False(t, IsString(v, "s"), "%#v", v)
		assert.False(t, IsArray(v, "s"), "%#v", v)
	}
}

func TestStruct(t *testing.T) {
	type person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	g := Struct[person](Has("name", IsString), Has("age", IsNumber))

	p, ok := g(decode(t, `{"name":"ada","age":36}`))
	require.True(t, ok)
	assert.Equal(t, person{Name: "ada", Age: 36}, p)

	_, ok = g(decode(t, `{"name":"ada"}`))
	assert.False(t, ok)

	_, ok = g(decode(t, `["ada",36]`))
	assert.False(t, ok)
}
