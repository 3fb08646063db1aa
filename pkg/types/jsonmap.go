package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary JSON object inside a JSONB column.
type JSONMap map[string]any

// Value serializes the map to JSON.
func (j *JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan decodes JSONB into the map.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded JSONMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*j = decoded
	return nil
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported jsonb source type %T", value)
	}
}

// Merge folds the incoming keys into the receiver without discarding existing
// entries. Nested objects present on both sides merge recursively; scalar keys
// from incoming win. The receiver's other keys are left untouched, so repeated
// merges accumulate rather than overwrite.
func (j JSONMap) Merge(incoming JSONMap) JSONMap {
	if j == nil {
		j = JSONMap{}
	}
	for key, value := range incoming {
		existing, ok := j[key]
		if !ok {
			j[key] = value
			continue
		}
		existingMap, okExisting := asMap(existing)
		incomingMap, okIncoming := asMap(value)
		if okExisting && okIncoming {
			j[key] = JSONMap(existingMap).Merge(incomingMap)
			continue
		}
		j[key] = value
	}
	return j
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case JSONMap:
		return v, true
	default:
		return nil, false
	}
}
