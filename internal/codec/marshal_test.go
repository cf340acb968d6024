package codec

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("cbor")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestMarshalCBORUsesDocumentKeys(t *testing.T) {
	env := StatusEnvelope{Header: Header{TypeNetworkFind}, Status: "found"}

	data, err := Marshal(env, FormatCBOR)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, cbor.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "network_find", "status": "found"}, got)
}

func TestUnmarshalDocument(t *testing.T) {
	doc, err := UnmarshalDocument([]byte(`{"type":"moveto","value":10}`), FormatJSON)
	require.NoError(t, err)
	cmd, err := DecodeLevelControl(doc)
	require.NoError(t, err)
	assert.Equal(t, int32(10), cmd.Value)

	data, err := Marshal(map[string]any{"type": "moveup", "value": 3, "auto_onoff": true}, FormatCBOR)
	require.NoError(t, err)
	doc, err = UnmarshalDocument(data, FormatCBOR)
	require.NoError(t, err)
	cmd, err = DecodeLevelControl(doc)
	require.NoError(t, err)
	assert.Equal(t, int32(3), cmd.Value)
	assert.True(t, cmd.Kind.AutoOnOff())

	_, err = UnmarshalDocument([]byte(`{not json`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestToDocument(t *testing.T) {
	doc, err := ToDocument(UnknownEnvelope{Header: Header{TypeUnknown}, TypeID: 40})
	require.NoError(t, err)
	assert.Equal(t, "unknown", doc["type"])
	assert.Equal(t, float64(40), doc["type_id"])
}
