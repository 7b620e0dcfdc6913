package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	B int    `cbor:"b"`
	A string `cbor:"a"`
}

func TestMarshalIsOrderIndependent(t *testing.T) {
	v1 := sample{A: "x", B: 1}
	v2 := sample{B: 1, A: "x"}

	b1, err := Marshal(v1)
	require.NoError(t, err)
	b2, err := Marshal(v2)
	require.NoError(t, err)

	require.Equal(t, b1, b2, "canonical encoding must be independent of struct field declaration order at the value level")
}

func TestHashRoundTrip(t *testing.T) {
	data := []byte("hello world")
	h := Hash(data)
	require.Len(t, h, 64)
	require.True(t, VerifyHash(data, h))
	require.False(t, VerifyHash([]byte("hello worlD"), h))
}

func TestHashCanonicalDeterministic(t *testing.T) {
	v := sample{A: "agent-1", B: 42}
	h1, err := HashCanonical(v)
	require.NoError(t, err)
	h2, err := HashCanonical(v)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestUnmarshalRoundTrip(t *testing.T) {
	v := sample{A: "z", B: 7}
	b, err := Marshal(v)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(b, &out))
	require.Equal(t, v, out)
}
