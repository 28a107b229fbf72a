package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	obj := Object{
		"zebra": Int(1),
		"alpha": Int(2),
		"mid":   Int(3),
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(data))
}

func TestMarshalCanonicalNested(t *testing.T) {
	obj := Object{
		"outer": Object{
			"b": Text("two"),
			"a": Text("one"),
		},
		"list": List{Int(1), Bool(true), Text("x")},
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,true,"x"],"outer":{"a":"one","b":"two"}}`, string(data))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.True(t, IsEncodingError(err), "float rejection must surface as EncodingError")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	require.Error(t, err)
	assert.True(t, IsEncodingError(err))

	_, err = MarshalCanonical(Object{"k": nil})
	require.Error(t, err)
	assert.True(t, IsEncodingError(err))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical(Text("a < b && c > d"))
	require.NoError(t, err)
	assert.Equal(t, `"a < b && c > d"`, string(data))
}

func TestMarshalCanonicalEscapesControls(t *testing.T) {
	data, err := MarshalCanonical(Text("line1\nline2\ttab\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"line1\nline2\ttab"`, string(data))
}

func TestMarshalCanonicalLineSeparatorsPassThrough(t *testing.T) {
	// RFC 8785: U+2028 and U+2029 are emitted literally, not escaped.
	data, err := MarshalCanonical(Text("a b c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a b c\"", string(data))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to precomposed é.
	decomposed := Text("é")
	precomposed := Text("é")

	d1, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	d2, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	assert.Equal(t, d2, d1, "NFC-equivalent strings must serialize identically")
}

func TestMarshalCanonicalEncodingErrorNamesField(t *testing.T) {
	obj := Object{"details": Object{"ratio": nil}}

	_, err := marshalCanonical(obj, "$")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.details.ratio")
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1D306 (surrogate pair in UTF-16) sorts before U+FF5E under UTF-16
	// code unit comparison, but after it under UTF-8 byte comparison.
	obj := Object{
		"\U0001D306": Int(1),
		"～":     Int(2),
	}

	keys := obj.SortedKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, "\U0001D306", keys[0])
	assert.Equal(t, "～", keys[1])
}
