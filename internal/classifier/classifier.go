// Package classifier provides an incremental nearest-neighbour classifier over image embeddings.
package classifier

import (
	"errors"
	"fmt"
	"sort"
)

// Label identifies one of the two trained classes.
type Label int

const (
	// NotTouching is the class recorded in the first training session.
	NotTouching Label = 0
	// Touching is the class recorded in the second training session.
	Touching Label = 1
	// NumLabels is the number of classes the classifier supports.
	NumLabels = 2
)

// DefaultK is the number of neighbours that vote on a prediction.
const DefaultK = 3

var (
	// ErrInsufficientExamples is returned by Predict until both labels have at least one example.
	ErrInsufficientExamples = errors.New("classifier needs at least one example per label")
	// ErrInvalidLabel is returned when a label is outside the supported range.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrEmptyEmbedding is returned when an embedding has no components.
	ErrEmptyEmbedding = errors.New("empty embedding")
	// ErrDimensionMismatch is returned when an embedding length differs from the stored examples.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// String returns a human-readable name for the label.
func (l Label) String() string {
	switch l {
	case NotTouching:
		return "not touching"
	case Touching:
		return "touching"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Valid reports whether the label is one of the supported classes.
func (l Label) Valid() bool {
	return l == NotTouching || l == Touching
}

// Embedding is a fixed-length feature vector produced from a single frame.
type Embedding []float32

// Example is an embedding paired with the label it was recorded under.
type Example struct {
	Embedding Embedding
	Label     Label
}

// Result is the outcome of a single prediction.
type Result struct {
	Label       Label
	Confidences [NumLabels]float64
}

// Confidence returns the confidence assigned to the given label.
func (r Result) Confidence(l Label) float64 {
	if !l.Valid() {
		return 0
	}
	return r.Confidences[l]
}

// Classifier stores labelled examples and classifies new embeddings by
// similarity-weighted voting among the k nearest stored examples.
//
// A Classifier is not safe for concurrent use. The training orchestrator owns
// it while recording and hands it to the detection loop once training is done.
type Classifier struct {
	k        int
	dim      int
	examples []Example
	counts   [NumLabels]int
	index    Index
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithK sets the number of voting neighbours. Values below 1 are ignored.
func WithK(k int) Option {
	return func(c *Classifier) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithIndex replaces the default exact neighbour index.
func WithIndex(idx Index) Option {
	return func(c *Classifier) {
		if idx != nil {
			c.index = idx
		}
	}
}

// New creates an empty Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		k:     DefaultK,
		index: NewExactIndex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddExample appends a labelled example. The embedding is copied so later
// changes by the caller cannot alter stored examples.
func (c *Classifier) AddExample(e Embedding, label Label) error {
	if !label.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLabel, int(label))
	}
	if len(e) == 0 {
		return ErrEmptyEmbedding
	}
	if c.dim != 0 && len(e) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e), c.dim)
	}

	stored := make(Embedding, len(e))
	copy(stored, e)

	id := len(c.examples)
	c.examples = append(c.examples, Example{Embedding: stored, Label: label})
	c.counts[label]++
	c.dim = len(e)
	c.index.Add(id, stored)

	return nil
}

// ClassCount returns the number of examples stored for the label.
func (c *Classifier) ClassCount(label Label) int {
	if !label.Valid() {
		return 0
	}
	return c.counts[label]
}

// NumClasses returns how many labels have at least one example.
func (c *Classifier) NumClasses() int {
	n := 0
	for _, count := range c.counts {
		if count > 0 {
			n++
		}
	}
	return n
}

// Len returns the total number of stored examples.
func (c *Classifier) Len() int {
	return len(c.examples)
}

// Dim returns the embedding length of stored examples, or 0 when empty.
func (c *Classifier) Dim() int {
	return c.dim
}

// Predict classifies the embedding.
//
// The k most similar examples (cosine similarity, ties broken by insertion
// order) each vote for their label with weight max(similarity, 0). When every
// weight is zero each neighbour counts once. Confidences are the per-label
// share of the total weight; the predicted label is the one with the highest
// confidence, the lower label winning ties.
func (c *Classifier) Predict(e Embedding) (Result, error) {
	if c.counts[NotTouching] == 0 || c.counts[Touching] == 0 {
		return Result{}, ErrInsufficientExamples
	}
	if len(e) != c.dim {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e), c.dim)
	}

	k := c.k
	if k > len(c.examples) {
		k = len(c.examples)
	}

	neighbors := c.index.Search(e, k)
	if len(neighbors) == 0 {
		return Result{}, ErrInsufficientExamples
	}

	var weights [NumLabels]float64
	var total float64
	for _, n := range neighbors {
		w := n.Similarity
		if w < 0 {
			w = 0
		}
		weights[c.examples[n.ID].Label] += w
		total += w
	}

	if total == 0 {
		weights = [NumLabels]float64{}
		for _, n := range neighbors {
			weights[c.examples[n.ID].Label]++
		}
		total = float64(len(neighbors))
	}

	var result Result
	for l := range weights {
		result.Confidences[l] = weights[l] / total
	}
	if result.Confidences[Touching] > result.Confidences[NotTouching] {
		result.Label = Touching
	} else {
		result.Label = NotTouching
	}

	return result, nil
}

// Neighbor is a stored example returned by an index search.
type Neighbor struct {
	ID         int
	Similarity float64
}

// sortNeighbors orders neighbours by descending similarity, then ascending ID.
func sortNeighbors(ns []Neighbor) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].Similarity != ns[j].Similarity {
			return ns[i].Similarity > ns[j].Similarity
		}
		return ns[i].ID < ns[j].ID
	})
}
