package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"id":3,"tags":["a","b"],"ok":true}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, int64(3), obj.Int("id"))
	assert.True(t, obj.Bool("ok"))
	assert.Equal(t, Array{String("a"), String("b")}, obj["tags"])
}

func TestUnmarshalValueRejects(t *testing.T) {
	for _, in := range []string{`1.5`, `null`, `{"x":null}`, `[1e3]`} {
		_, err := UnmarshalValue([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{"latency_ms": Int(250), "exposure": String("revealed")}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"exposure":"revealed","latency_ms":250}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestObjectAccessorsDefault(t *testing.T) {
	obj := Object{"n": String("not a number")}
	assert.Equal(t, int64(0), obj.Int("n"))
	assert.Equal(t, "", obj.String("missing"))
	assert.False(t, obj.Bool("n"))
}

func TestUintClamps(t *testing.T) {
	assert.Equal(t, Int(7), Uint(7))
	assert.Equal(t, Int(9223372036854775807), Uint(^uint64(0)))
}
