package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolution_MarshalWrapsCurrentVersion(t *testing.T) {
	e := NewEvolution()

	stored, err := e.Marshal(map[string]interface{}{"titulo_central": "Tema"})
	require.NoError(t, err)

	var env struct {
		SchemaVersion int             `json:"_schema_version"`
		Data          json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stored), &env))
	assert.Equal(t, CurrentPayloadVersion, env.SchemaVersion)
}

func TestEvolution_RoundTrip(t *testing.T) {
	e := NewEvolution()
	payload := map[string]interface{}{
		"titulo_central":    "Tema",
		"conceptos_clave":   []interface{}{"a", "b", "c", "d", "e"},
		"resumen_ejecutivo": "Resumen.",
	}

	stored, err := e.Marshal(payload)
	require.NoError(t, err)

	restored, err := e.Unmarshal(stored)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestEvolution_BarePayloadTreatedAsV1(t *testing.T) {
	e := NewEvolution()

	// Items written before versioning existed: no envelope, v1 keys
	stored := `{"central_title":"Tema","key_concepts":["a","b","c","d","e"],"summary":"Resumen."}`

	payload, err := e.Unmarshal(stored)
	require.NoError(t, err)

	assert.Equal(t, "Tema", payload["titulo_central"])
	assert.Equal(t, "Resumen.", payload["resumen_ejecutivo"])
	assert.Len(t, payload["conceptos_clave"], 5)
	assert.NotContains(t, payload, "central_title")
	assert.NotContains(t, payload, "summary")
}

func TestEvolution_EnvelopedV1Upgraded(t *testing.T) {
	e := NewEvolution()

	stored := `{"_schema_version":1,"data":{"central_title":"Tema","key_concepts":["a"],"summary":"R"}}`

	payload, err := e.Unmarshal(stored)
	require.NoError(t, err)
	assert.Equal(t, "Tema", payload["titulo_central"])
}

func TestEvolution_CurrentVersionPassesThrough(t *testing.T) {
	e := NewEvolution()

	stored := `{"_schema_version":2,"data":{"titulo_central":"Tema"}}`

	payload, err := e.Unmarshal(stored)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"titulo_central": "Tema"}, payload)
}

func TestEvolution_UnknownKeysSurviveUpgrade(t *testing.T) {
	e := NewEvolution()

	stored := `{"_schema_version":1,"data":{"central_title":"Tema","extra":"kept"}}`

	payload, err := e.Unmarshal(stored)
	require.NoError(t, err)
	assert.Equal(t, "kept", payload["extra"])
}

func TestEvolution_RejectsMalformedPayload(t *testing.T) {
	e := NewEvolution()

	_, err := e.Unmarshal(`not json`)
	assert.Error(t, err)

	_, err = e.Unmarshal(`["array","payload"]`)
	assert.Error(t, err)
}

func TestEvolution_RegisterValidation(t *testing.T) {
	e := &Evolution{}

	err := e.Register(Migration{FromVersion: 1, ToVersion: 3})
	assert.Error(t, err)

	require.NoError(t, e.Register(Migration{
		FromVersion: 1,
		ToVersion:   2,
		Up: func(p map[string]interface{}) (map[string]interface{}, error) {
			return p, nil
		},
	}))

	err = e.Register(Migration{FromVersion: 1, ToVersion: 2})
	assert.Error(t, err, "duplicate from-version must be rejected")
}

func TestEvolution_MissingMigrationStepFails(t *testing.T) {
	e := &Evolution{}

	_, err := e.upgrade(map[string]interface{}{}, 1)
	assert.Error(t, err)
}
