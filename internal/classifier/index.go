package classifier

import (
	"math"
	"math/rand"

	"github.com/coder/hnsw"
)

// Index finds the stored examples most similar to a query embedding.
type Index interface {
	// Add registers an embedding under the given example ID.
	Add(id int, e Embedding)
	// Search returns up to k neighbours ordered by descending similarity.
	Search(query Embedding, k int) []Neighbor
}

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// Vectors of different length or zero norm have similarity 0.
func CosineSimilarity(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp floating point drift
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// ExactIndex compares the query against every stored example.
type ExactIndex struct {
	vectors []Embedding
}

// NewExactIndex creates an empty ExactIndex.
func NewExactIndex() *ExactIndex {
	return &ExactIndex{}
}

// Add stores the embedding. IDs must be assigned sequentially from zero.
func (x *ExactIndex) Add(id int, e Embedding) {
	if id != len(x.vectors) {
		return
	}
	x.vectors = append(x.vectors, e)
}

// Search scores every stored embedding and returns the k best.
func (x *ExactIndex) Search(query Embedding, k int) []Neighbor {
	if k <= 0 || len(x.vectors) == 0 {
		return nil
	}

	all := make([]Neighbor, len(x.vectors))
	for i, v := range x.vectors {
		all[i] = Neighbor{ID: i, Similarity: CosineSimilarity(query, v)}
	}
	sortNeighbors(all)

	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// HNSW graph parameters.
const (
	HNSWMaxNeighbors = 16
	HNSWEfSearch     = 32
	// HNSWSeed keeps level assignment reproducible so predictions stay deterministic.
	HNSWSeed = 1
)

// HNSWIndex is an approximate index backed by a hierarchical navigable small world graph.
// It suits sessions where the example count grows well beyond the default training run.
type HNSWIndex struct {
	graph *hnsw.Graph[int]
}

// NewHNSWIndex creates an empty HNSWIndex using cosine distance.
func NewHNSWIndex() *HNSWIndex {
	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(HNSWSeed))

	return &HNSWIndex{graph: g}
}

// Add inserts the embedding into the graph.
func (h *HNSWIndex) Add(id int, e Embedding) {
	h.graph.Add(hnsw.MakeNode(id, []float32(e)))
}

// Search returns the approximate k nearest neighbours with exact similarities.
func (h *HNSWIndex) Search(query Embedding, k int) []Neighbor {
	if k <= 0 || h.graph.Len() == 0 {
		return nil
	}

	nodes := h.graph.Search([]float32(query), k)
	result := make([]Neighbor, len(nodes))
	for i, n := range nodes {
		result[i] = Neighbor{ID: n.Key, Similarity: CosineSimilarity(query, n.Value)}
	}
	sortNeighbors(result)

	return result
}
