package serial

import (
	"reflect"
	"testing"
)

func structuralValue() map[string]any {
	return map[string]any{
		"name":    "counter",
		"count":   float64(3),
		"enabled": true,
		"tags":    []any{"a", "b"},
		"nested":  map[string]any{"depth": float64(2)},
		"empty":   nil,
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	s := JSON{}
	in := structuralValue()

	text, err := s.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	out, err := s.Deserialize(text)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", out, in)
	}
}

func TestJSON_DeserializeInvalid(t *testing.T) {
	if _, err := (JSON{}).Deserialize("{not json"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	s := YAML{}
	in := map[string]any{
		"name":  "counter",
		"count": 3,
		"tags":  []any{"a", "b"},
	}

	text, err := s.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	out, err := s.Deserialize(text)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", out, in)
	}
}

func TestDefault(t *testing.T) {
	if _, ok := Default().(JSON); !ok {
		t.Errorf("Default() = %T, want JSON", Default())
	}
}
