package memcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredSerializer_ScalarPassthrough(t *testing.T) {
	s := StructuredSerializer{}

	p, handled, err := s.Serialize("hello")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []byte("hello"), p.Data)
	assert.Equal(t, uint32(0), p.Flags)

	p, handled, err = s.Serialize([]byte("raw bytes"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []byte("raw bytes"), p.Data)
	assert.Equal(t, uint32(0), p.Flags)
}

func TestStructuredSerializer_RoundTrip(t *testing.T) {
	s := StructuredSerializer{}

	type record struct {
		Name string
		Age  int
	}
	in := record{Name: "ada", Age: 36}

	p, handled, err := s.Serialize(in)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, FlagSerialized, p.Flags&FlagSerialized)

	out, err := s.Deserialize(p)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStructuredSerializer_DeserializeUnflaggedReturnsRawBytes(t *testing.T) {
	s := StructuredSerializer{}

	out, err := s.Deserialize(Payload{Data: []byte("plain")})
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)
}

func TestJSONSerializer_ScalarPassthrough(t *testing.T) {
	s := JSONSerializer{}

	p, handled, err := s.Serialize("hello")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []byte("hello"), p.Data)
	assert.Equal(t, uint32(0), p.Flags)
}

func TestJSONSerializer_RoundTrip(t *testing.T) {
	s := JSONSerializer{}

	type record struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	in := record{Name: "grace", Age: 85}

	p, handled, err := s.Serialize(in)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, FlagJSON, p.Flags&FlagJSON)

	out, err := s.Deserialize(p)
	require.NoError(t, err)

	raw, ok := out.(interface{ MarshalJSON() ([]byte, error) })
	require.True(t, ok, "Deserialize should return json.RawMessage for FlagJSON payloads")
	data, err := raw.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"grace","age":85}`, string(data))
}

func TestJSONSerializer_DeserializeUnflaggedReturnsRawBytes(t *testing.T) {
	s := JSONSerializer{}

	out, err := s.Deserialize(Payload{Data: []byte("plain")})
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)
}
