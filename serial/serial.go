// Package serial defines the text serialization boundary used by persistence.
// The default is structural JSON; a YAML implementation is provided for
// callers that prefer human-editable persisted state. Values outside the
// structural set (objects, arrays, strings, numbers, booleans, null) degrade
// to a best-effort representation and are not guaranteed round-trippable.
package serial

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Serializer converts values to and from their text form.
type Serializer interface {
	Serialize(v any) (string, error)
	Deserialize(s string) (any, error)
}

// JSON serializes with encoding/json. Objects deserialize as map[string]any
// and arrays as []any.
type JSON struct{}

// Serialize implements Serializer.
func (JSON) Serialize(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize implements Serializer.
func (JSON) Deserialize(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// YAML serializes with gopkg.in/yaml.v3. Objects deserialize as
// map[string]any and sequences as []any.
type YAML struct{}

// Serialize implements Serializer.
func (YAML) Serialize(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize implements Serializer.
func (YAML) Deserialize(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Default returns the serializer used when none is configured.
func Default() Serializer {
	return JSON{}
}
