package database

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEncoding decodes the stored face encoding blob: decimal floats joined
// by commas, exactly EncodingDim of them. Anything else (empty payload,
// non-numeric tokens, wrong dimensionality) is an error so callers can count
// and skip the row without aborting a batch load.
func ParseEncoding(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty encoding")
	}

	parts := strings.Split(raw, ",")
	if len(parts) != EncodingDim {
		return nil, fmt.Errorf("encoding has %d values, want %d", len(parts), EncodingDim)
	}

	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("encoding value %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// FormatEncoding is the inverse of ParseEncoding.
func FormatEncoding(vec []float32) string {
	parts := make([]string, len(vec))
	for i, f := range vec {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}
