package classifier

import "testing"

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b Embedding
		want float64
	}{
		{name: "identical", a: Embedding{1, 2, 3}, b: Embedding{1, 2, 3}, want: 1},
		{name: "orthogonal", a: Embedding{1, 0}, b: Embedding{0, 1}, want: 0},
		{name: "opposite", a: Embedding{1, 0}, b: Embedding{-1, 0}, want: -1},
		{name: "scaled", a: Embedding{1, 1}, b: Embedding{3, 3}, want: 1},
		{name: "length mismatch", a: Embedding{1}, b: Embedding{1, 0}, want: 0},
		{name: "zero vector", a: Embedding{0, 0}, b: Embedding{1, 0}, want: 0},
		{name: "empty", a: Embedding{}, b: Embedding{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); !floatEqual(got, tt.want) {
				t.Errorf("CosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestExactIndex_Search(t *testing.T) {
	idx := NewExactIndex()
	idx.Add(0, Embedding{1, 0})
	idx.Add(1, Embedding{0, 1})
	idx.Add(2, Embedding{0, 1})
	idx.Add(3, Embedding{0.7, 0.7})

	got := idx.Search(Embedding{0, 1}, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 neighbours, got %d", len(got))
	}

	// Equal similarities keep insertion order
	wantIDs := []int{1, 2, 3}
	for i, n := range got {
		if n.ID != wantIDs[i] {
			t.Errorf("neighbour %d ID = %d, want %d", i, n.ID, wantIDs[i])
		}
	}

	if len(idx.Search(Embedding{0, 1}, 10)) != 4 {
		t.Error("k larger than the index should return every entry")
	}
	if idx.Search(Embedding{0, 1}, 0) != nil {
		t.Error("k of 0 should return nil")
	}
}

func TestExactIndex_IgnoresOutOfOrderIDs(t *testing.T) {
	idx := NewExactIndex()
	idx.Add(5, Embedding{1, 0})

	if got := idx.Search(Embedding{1, 0}, 1); got != nil {
		t.Errorf("expected no neighbours, got %v", got)
	}
}

func TestHNSWIndex_MatchesExact(t *testing.T) {
	exact := newTrained(t, 5)
	approx := newTrained(t, 5, WithIndex(NewHNSWIndex()))

	queries := []Embedding{
		{0.1, 0.9, 0},
		{0.9, 0.1, 0},
		{0.6, 0.4, 0.1},
	}

	for _, q := range queries {
		want, err := exact.Predict(q)
		if err != nil {
			t.Fatalf("exact Predict() error = %v", err)
		}
		got, err := approx.Predict(q)
		if err != nil {
			t.Fatalf("hnsw Predict() error = %v", err)
		}
		if got.Label != want.Label {
			t.Errorf("query %v: hnsw label = %v, exact label = %v", q, got.Label, want.Label)
		}
	}
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx := NewHNSWIndex()
	if got := idx.Search(Embedding{1, 0}, 3); got != nil {
		t.Errorf("expected nil from empty index, got %v", got)
	}
}
