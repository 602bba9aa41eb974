package tagged

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPutsTypeFirst(t *testing.T) {
	out, err := Marshal("Lamp", struct {
		On bool `json:"on"`
	}{On: true})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"Lamp","on":true}`, string(out))

	out, err = Marshal("PresetsRq", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"PresetsRq"}`, string(out))
}

func TestMarshalRejectsNonObjects(t *testing.T) {
	_, err := Marshal("Index", 3)
	assert.Error(t, err)
}

func TestPeek(t *testing.T) {
	tag, err := Peek([]byte(`{"index":2,"type":"PresetSelect"}`))
	require.NoError(t, err)
	assert.Equal(t, "PresetSelect", tag)

	_, err = Peek([]byte(`{"index":2}`))
	assert.Error(t, err)

	_, err = Peek([]byte(`{"type":`))
	assert.Error(t, err)
}
