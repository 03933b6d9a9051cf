// Package gallery loads registered face encodings into an in-memory
// identity index for nearest-neighbor matching.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrEmptyGallery means no student has a usable encoding. Matching cannot
// run against an empty gallery, so callers skip recognition instead of
// treating this as fatal.
var ErrEmptyGallery = errors.New("no valid face encodings in gallery")

// Identity is one registered student with a parsed encoding.
type Identity struct {
	StudentID string
	Name      string
	Encoding  []float32
}

// Stats summarizes one gallery load.
type Stats struct {
	Valid   int
	Invalid int
	Total   int
}

// Gallery is an immutable snapshot of registered identities. Reloads build
// a whole new snapshot and swap it in, never mutate a live one.
type Gallery struct {
	identities []Identity
	idx        *index
	stats      Stats
	loadedAt   time.Time
}

// Stats returns the load counters for this snapshot.
func (g *Gallery) Stats() Stats {
	return g.stats
}

// Size returns the number of identities in the snapshot.
func (g *Gallery) Size() int {
	return len(g.identities)
}

// LoadedAt returns when this snapshot was built.
func (g *Gallery) LoadedAt() time.Time {
	return g.loadedAt
}

// Identities returns the snapshot contents.
func (g *Gallery) Identities() []Identity {
	return g.identities
}

// Nearest returns up to k closest identities for a query encoding,
// ordered by exact distance.
func (g *Gallery) Nearest(query []float32, k int) []Candidate {
	return g.idx.nearest(query, k)
}

// Loader builds gallery snapshots from the student table.
type Loader struct {
	students database.StudentReader
	logger   zerolog.Logger

	mu      sync.RWMutex
	current *Gallery
}

// NewLoader creates a loader reading from the given student source.
func NewLoader(students database.StudentReader) *Loader {
	return &Loader{
		students: students,
		logger:   log.WithComponent("gallery"),
	}
}

// Load reads all encodings and swaps in a fresh snapshot. Malformed
// encodings are skipped row by row; only a gallery with zero usable
// entries is an error. On error the previous snapshot stays current.
func (l *Loader) Load(ctx context.Context) (*Gallery, error) {
	students, err := l.students.ListStudentsWithEncoding(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	stats := Stats{Total: len(students)}
	identities := make([]Identity, 0, len(students))
	for _, s := range students {
		encoding, err := database.ParseEncoding(s.RawEncoding)
		if err != nil {
			stats.Invalid++
			l.logger.Warn().Str("student_id", s.ID).Err(err).Msg("skipping malformed encoding")
			continue
		}
		identities = append(identities, Identity{
			StudentID: s.ID,
			Name:      s.Name,
			Encoding:  encoding,
		})
	}
	stats.Valid = len(identities)

	metrics.GalleryStudents.Set(float64(stats.Valid))
	metrics.GalleryInvalid.Set(float64(stats.Invalid))

	if stats.Valid == 0 {
		return nil, fmt.Errorf("%w (%d students, %d malformed)", ErrEmptyGallery, stats.Total, stats.Invalid)
	}

	g := &Gallery{
		identities: identities,
		idx:        newIndex(identities),
		stats:      stats,
		loadedAt:   time.Now(),
	}

	l.mu.Lock()
	l.current = g
	l.mu.Unlock()

	l.logger.Info().
		Int("valid", stats.Valid).
		Int("invalid", stats.Invalid).
		Msg("gallery loaded")

	return g, nil
}

// Current returns the last successfully loaded snapshot, nil before the
// first load.
func (l *Loader) Current() *Gallery {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
