package canon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	a, err := Marshal(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestMarshalKeyReorderEquality(t *testing.T) {
	a, err := Marshal(map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"y": 2, "x": 1})
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestMarshalIdempotent(t *testing.T) {
	payload := map[string]any{
		"nested": map[string]any{"z": 3, "a": []any{1, 2, 3}},
		"s":      "hello",
	}
	first, err := Marshal(payload)
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal(first, &decoded))
	second, err := Marshal(decoded)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
}

func TestMarshalNumberShortestForm(t *testing.T) {
	out, err := Marshal(map[string]any{"n": json.Number("1.50")})
	require.NoError(t, err)
	require.Equal(t, `{"n":1.5}`, string(out))
}

func TestMarshalArrayPreservesOrder(t *testing.T) {
	out, err := Marshal([]any{3, 1, 2})
	require.NoError(t, err)
	require.Equal(t, `[3,1,2]`, string(out))
}
