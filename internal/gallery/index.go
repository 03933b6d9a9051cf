package gallery

import (
	"sort"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/rollcall/internal/database"
)

// Candidate is one nearest-neighbor hit with its exact distance.
type Candidate struct {
	Identity *Identity
	Distance float64
}

// index wraps an HNSW graph over the gallery identities. It is built once
// per load and never mutated afterwards, so lookups need no locking.
type index struct {
	graph *hnsw.Graph[int64]
	byKey map[int64]*Identity
}

func newIndex(identities []Identity) *index {
	idx := &index{byKey: make(map[int64]*Identity, len(identities))}
	if len(identities) == 0 {
		return idx
	}

	g := hnsw.NewGraph[int64]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance

	for i := range identities {
		key := int64(i)
		g.Add(hnsw.MakeNode(key, identities[i].Encoding))
		idx.byKey[key] = &identities[i]
	}

	idx.graph = g
	return idx
}

// nearest returns up to k candidates ordered by distance. The graph search
// is approximate, so exact distances are recomputed before ranking.
func (x *index) nearest(query []float32, k int) []Candidate {
	if x.graph == nil || k <= 0 {
		return nil
	}

	neighbors := x.graph.Search(query, k)
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		identity, ok := x.byKey[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Identity: identity,
			Distance: database.EuclideanDistance(query, n.Value),
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
	return candidates
}
