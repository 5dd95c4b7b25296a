package ajax

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseMarshalsTaggedCommandsInOrder(t *testing.T) {
	resp := NewResponse(Redirect{URL: "/wizards/page/nojs/m1/conditions"}).Add(CloseModal{})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"command": "redirect", "url": "/wizards/page/nojs/m1/conditions"},
		{"command": "closeDialog"}
	]`, string(data))
}

func TestOpenModalWizardFields(t *testing.T) {
	resp := NewResponse(OpenModalWizard{Wizard: "page", Collection: "page_variant", MachineName: "m1", Step: "two"})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"command":"openModalWizard","wizard":"page","tempstore_id":"page_variant","machine_name":"m1","step":"two"}]`, string(data))
}

func TestEmptyResponseIsEmptyArray(t *testing.T) {
	data, err := json.Marshal(NewResponse())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
