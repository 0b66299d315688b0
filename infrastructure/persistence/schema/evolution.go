package schema

import (
	"encoding/json"
	"fmt"
)

// CurrentPayloadVersion is the schema version new map payloads are written
// with. Bump it together with a registered migration whenever the stored
// shape changes.
const CurrentPayloadVersion = 2

// envelope wraps a stored payload with its schema version so reads can
// upgrade old items in place
type envelope struct {
	SchemaVersion int             `json:"_schema_version"`
	Data          json.RawMessage `json:"data"`
}

// MigrationFunc upgrades a payload one schema version forward
type MigrationFunc func(payload map[string]interface{}) (map[string]interface{}, error)

// Migration upgrades stored payloads between two adjacent schema versions
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Up          MigrationFunc
}

// Evolution manages stored payload schema versions. Items are never
// rewritten in bulk; each read upgrades its payload to the current version
// and the next save persists the new shape.
type Evolution struct {
	migrations []Migration
}

// NewEvolution creates an evolution manager with the standard map payload
// migrations registered
func NewEvolution() *Evolution {
	e := &Evolution{}

	// v1 stored the flat summary under normalized English keys before the
	// raw wire payload became the canonical stored form
	e.mustRegister(Migration{
		FromVersion: 1,
		ToVersion:   2,
		Description: "rename normalized flat summary keys to wire keys",
		Up:          upgradeFlatSummaryKeys,
	})

	return e
}

// Register adds a migration step. Steps must advance exactly one version.
func (e *Evolution) Register(m Migration) error {
	if m.ToVersion != m.FromVersion+1 {
		return fmt.Errorf("migration must advance one version, got %d->%d", m.FromVersion, m.ToVersion)
	}
	for _, existing := range e.migrations {
		if existing.FromVersion == m.FromVersion {
			return fmt.Errorf("migration from version %d already registered", m.FromVersion)
		}
	}
	e.migrations = append(e.migrations, m)
	return nil
}

func (e *Evolution) mustRegister(m Migration) {
	if err := e.Register(m); err != nil {
		panic(err)
	}
}

// Marshal wraps a payload in the versioned envelope for storage
func (e *Evolution) Marshal(payload map[string]interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	wrapped, err := json.Marshal(envelope{
		SchemaVersion: CurrentPayloadVersion,
		Data:          data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(wrapped), nil
}

// Unmarshal reads a stored payload and upgrades it to the current schema
// version. Items written before versioning existed carry a bare payload and
// are treated as version 1.
func (e *Evolution) Unmarshal(stored string) (map[string]interface{}, error) {
	var env envelope
	version := 1
	data := []byte(stored)

	if err := json.Unmarshal([]byte(stored), &env); err == nil && env.SchemaVersion > 0 {
		version = env.SchemaVersion
		data = env.Data
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return e.upgrade(payload, version)
}

func (e *Evolution) upgrade(payload map[string]interface{}, version int) (map[string]interface{}, error) {
	for version < CurrentPayloadVersion {
		step := e.find(version)
		if step == nil {
			return nil, fmt.Errorf("no migration registered from payload version %d", version)
		}
		upgraded, err := step.Up(payload)
		if err != nil {
			return nil, fmt.Errorf("payload migration %d->%d failed: %w", step.FromVersion, step.ToVersion, err)
		}
		payload = upgraded
		version = step.ToVersion
	}
	return payload, nil
}

func (e *Evolution) find(from int) *Migration {
	for i := range e.migrations {
		if e.migrations[i].FromVersion == from {
			return &e.migrations[i]
		}
	}
	return nil
}

// upgradeFlatSummaryKeys renames the v1 normalized keys back to the wire
// keys the validator accepts. Graph payloads were introduced after v2 and
// never stored under the old keys, so they pass through untouched.
func upgradeFlatSummaryKeys(payload map[string]interface{}) (map[string]interface{}, error) {
	renames := map[string]string{
		"central_title": "titulo_central",
		"key_concepts":  "conceptos_clave",
		"summary":       "resumen_ejecutivo",
	}

	upgraded := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if renamed, ok := renames[key]; ok {
			upgraded[renamed] = value
			continue
		}
		upgraded[key] = value
	}
	return upgraded, nil
}
