package gallery

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
)

// axisEncoding builds a 128-dim encoding with a single non-zero component.
func axisEncoding(axis int, value float32) string {
	enc := make([]float32, database.EncodingDim)
	enc[axis] = value
	return database.FormatEncoding(enc)
}

func TestLoad(t *testing.T) {
	store := mock.NewStore()
	store.AddStudent(database.Student{ID: "S001", Name: "Alice", RawEncoding: axisEncoding(0, 1)})
	store.AddStudent(database.Student{ID: "S002", Name: "Bob", RawEncoding: axisEncoding(1, 1)})
	store.AddStudent(database.Student{ID: "S003", Name: "Mallory", RawEncoding: "1,2,3"})

	loader := NewLoader(store)
	g, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	stats := g.Stats()
	if stats.Valid != 2 {
		t.Errorf("expected 2 valid encodings, got %d", stats.Valid)
	}
	if stats.Invalid != 1 {
		t.Errorf("expected 1 invalid encoding, got %d", stats.Invalid)
	}
	if stats.Total != 3 {
		t.Errorf("expected 3 total students, got %d", stats.Total)
	}
	if g.Size() != 2 {
		t.Errorf("expected gallery size 2, got %d", g.Size())
	}
	if loader.Current() != g {
		t.Error("Current() should return the loaded snapshot")
	}
}

func TestLoadEmptyGallery(t *testing.T) {
	tests := []struct {
		name     string
		students []database.Student
	}{
		{"NoStudents", nil},
		{"OnlyMalformed", []database.Student{
			{ID: "S001", Name: "Alice", RawEncoding: "banana"},
			{ID: "S002", Name: "Bob", RawEncoding: "1,2"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mock.NewStore()
			for _, s := range tt.students {
				store.AddStudent(s)
			}

			loader := NewLoader(store)
			_, err := loader.Load(context.Background())
			if !errors.Is(err, ErrEmptyGallery) {
				t.Errorf("expected ErrEmptyGallery, got %v", err)
			}
			if loader.Current() != nil {
				t.Error("Current() should stay nil after a failed load")
			}
		})
	}
}

func TestLoadKeepsPreviousSnapshotOnError(t *testing.T) {
	store := mock.NewStore()
	store.AddStudent(database.Student{ID: "S001", Name: "Alice", RawEncoding: axisEncoding(0, 1)})

	loader := NewLoader(store)
	first, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	store.ListStudentsError = errors.New("connection refused")
	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatal("expected error from failed load")
	}

	if loader.Current() != first {
		t.Error("failed reload must not replace the current snapshot")
	}
}

func TestNearest(t *testing.T) {
	store := mock.NewStore()
	store.AddStudent(database.Student{ID: "S001", Name: "Alice", RawEncoding: axisEncoding(0, 1)})
	store.AddStudent(database.Student{ID: "S002", Name: "Bob", RawEncoding: axisEncoding(1, 1)})
	store.AddStudent(database.Student{ID: "S003", Name: "Carol", RawEncoding: axisEncoding(2, 1)})

	loader := NewLoader(store)
	g, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	query := make([]float32, database.EncodingDim)
	query[0] = 0.9

	candidates := g.Nearest(query, 2)
	if len(candidates) == 0 {
		t.Fatal("expected candidates, got none")
	}
	if len(candidates) > 2 {
		t.Errorf("expected at most 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Identity.StudentID != "S001" {
		t.Errorf("expected nearest S001, got %s", candidates[0].Identity.StudentID)
	}
	if math.Abs(candidates[0].Distance-0.1) > 1e-3 {
		t.Errorf("expected distance ~0.1, got %f", candidates[0].Distance)
	}

	// Candidates come back ordered by distance
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Distance < candidates[i-1].Distance {
			t.Error("candidates not sorted by distance")
		}
	}
}

func TestNearestZeroK(t *testing.T) {
	store := mock.NewStore()
	store.AddStudent(database.Student{ID: "S001", Name: "Alice", RawEncoding: axisEncoding(0, 1)})

	loader := NewLoader(store)
	g, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := g.Nearest(make([]float32, database.EncodingDim), 0); got != nil {
		t.Errorf("expected nil for k=0, got %v", got)
	}
}
