package database

import (
	"strings"
	"testing"
)

// validEncodingString builds a well-formed 128-value blob.
func validEncodingString() string {
	parts := make([]string, EncodingDim)
	for i := range parts {
		parts[i] = "0.125"
	}
	return strings.Join(parts, ",")
}

func TestParseEncoding_Valid(t *testing.T) {
	vec, err := ParseEncoding(validEncodingString())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != EncodingDim {
		t.Errorf("expected %d values, got %d", EncodingDim, len(vec))
	}
	if vec[0] != 0.125 || vec[EncodingDim-1] != 0.125 {
		t.Errorf("expected all values 0.125, got first=%f last=%f", vec[0], vec[EncodingDim-1])
	}
}

func TestParseEncoding_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too short", "0.1,0.2,0.3"},
		{"too long", validEncodingString() + ",0.5"},
		{"non numeric", strings.Replace(validEncodingString(), "0.125", "abc", 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEncoding(tc.raw); err == nil {
				t.Errorf("expected error for %s input", tc.name)
			}
		})
	}
}

func TestFormatEncoding_RoundTrip(t *testing.T) {
	vec := make([]float32, EncodingDim)
	for i := range vec {
		vec[i] = float32(i) * 0.01
	}

	parsed, err := ParseEncoding(FormatEncoding(vec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range vec {
		if parsed[i] != vec[i] {
			t.Errorf("value %d: expected %f, got %f", i, vec[i], parsed[i])
		}
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	got := EuclideanDistance(a, b)
	want := 1.4142135623730951
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("expected distance ~%f, got %f", want, got)
	}

	if d := EuclideanDistance(a, a); d != 0 {
		t.Errorf("expected zero distance for identical vectors, got %f", d)
	}
}

func TestEuclideanDistance_InvalidInput(t *testing.T) {
	if d := EuclideanDistance([]float32{1, 2}, []float32{1, 2, 3}); d != MaxDistance {
		t.Errorf("expected MaxDistance for mismatched lengths, got %f", d)
	}
	if d := EuclideanDistance(nil, nil); d != MaxDistance {
		t.Errorf("expected MaxDistance for empty vectors, got %f", d)
	}
}
