package classifier

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-6

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// newTrained returns a classifier holding n examples per label, with
// not-touching examples along the X axis and touching examples along Y.
func newTrained(t *testing.T, n int, opts ...Option) *Classifier {
	t.Helper()

	c := New(opts...)
	for i := 0; i < n; i++ {
		if err := c.AddExample(Embedding{1, 0, 0}, NotTouching); err != nil {
			t.Fatalf("AddExample() error = %v", err)
		}
	}
	for i := 0; i < n; i++ {
		if err := c.AddExample(Embedding{0, 1, 0}, Touching); err != nil {
			t.Fatalf("AddExample() error = %v", err)
		}
	}
	return c
}

func TestClassifier_ClassCount(t *testing.T) {
	tests := []struct {
		name    string
		labels  []Label
		wantNot int
		wantYes int
	}{
		{name: "empty", labels: nil, wantNot: 0, wantYes: 0},
		{name: "only not touching", labels: []Label{0, 0, 0}, wantNot: 3, wantYes: 0},
		{name: "interleaved", labels: []Label{0, 1, 1, 0, 1}, wantNot: 2, wantYes: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for _, l := range tt.labels {
				if err := c.AddExample(Embedding{1, 2}, l); err != nil {
					t.Fatalf("AddExample() error = %v", err)
				}
			}

			if got := c.ClassCount(NotTouching); got != tt.wantNot {
				t.Errorf("ClassCount(NotTouching) = %d, want %d", got, tt.wantNot)
			}
			if got := c.ClassCount(Touching); got != tt.wantYes {
				t.Errorf("ClassCount(Touching) = %d, want %d", got, tt.wantYes)
			}
			if got := c.Len(); got != len(tt.labels) {
				t.Errorf("Len() = %d, want %d", got, len(tt.labels))
			}
		})
	}
}

func TestClassifier_AddExample_Invalid(t *testing.T) {
	c := New()

	if err := c.AddExample(Embedding{1}, Label(2)); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected ErrInvalidLabel, got %v", err)
	}
	if err := c.AddExample(Embedding{}, NotTouching); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
	if err := c.AddExample(Embedding{1, 2}, NotTouching); err != nil {
		t.Fatalf("AddExample() error = %v", err)
	}
	if err := c.AddExample(Embedding{1, 2, 3}, Touching); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	// Rejected examples must not be counted
	if c.Len() != 1 || c.ClassCount(Touching) != 0 {
		t.Errorf("rejected examples were stored: len=%d touching=%d", c.Len(), c.ClassCount(Touching))
	}
	if c.ClassCount(Label(7)) != 0 {
		t.Error("ClassCount of invalid label should be 0")
	}
}

func TestClassifier_AddExample_CopiesEmbedding(t *testing.T) {
	c := New()
	e := Embedding{1, 0}
	c.AddExample(e, NotTouching)
	c.AddExample(Embedding{0, 1}, Touching)

	e[0] = 0
	e[1] = 1

	result, err := c.Predict(Embedding{1, 0})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if result.Label != NotTouching {
		t.Errorf("stored example was mutated through caller slice, got %v", result.Label)
	}
}

func TestClassifier_Predict_InsufficientExamples(t *testing.T) {
	t.Run("no examples", func(t *testing.T) {
		c := New()
		if _, err := c.Predict(Embedding{1}); !errors.Is(err, ErrInsufficientExamples) {
			t.Errorf("expected ErrInsufficientExamples, got %v", err)
		}
	})

	t.Run("one label only", func(t *testing.T) {
		c := New()
		for i := 0; i < 5; i++ {
			c.AddExample(Embedding{1, 0}, Touching)
		}
		if _, err := c.Predict(Embedding{1, 0}); !errors.Is(err, ErrInsufficientExamples) {
			t.Errorf("expected ErrInsufficientExamples, got %v", err)
		}
	})
}

func TestClassifier_Predict_DimensionMismatch(t *testing.T) {
	c := newTrained(t, 2)
	if _, err := c.Predict(Embedding{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestClassifier_Predict_NearestLabel(t *testing.T) {
	c := newTrained(t, 5)

	tests := []struct {
		name      string
		query     Embedding
		wantLabel Label
	}{
		{name: "close to touching", query: Embedding{0.1, 0.9, 0}, wantLabel: Touching},
		{name: "close to not touching", query: Embedding{0.9, 0.1, 0}, wantLabel: NotTouching},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Predict(tt.query)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if result.Label != tt.wantLabel {
				t.Errorf("Label = %v, want %v", result.Label, tt.wantLabel)
			}
			if !floatEqual(result.Confidence(tt.wantLabel), 1.0) {
				t.Errorf("Confidence = %f, want 1.0", result.Confidence(tt.wantLabel))
			}
			sum := result.Confidences[0] + result.Confidences[1]
			if !floatEqual(sum, 1.0) {
				t.Errorf("confidences sum to %f, want 1.0", sum)
			}
		})
	}
}

func TestClassifier_Predict_SimilarityWeighted(t *testing.T) {
	c := New(WithK(2))
	c.AddExample(Embedding{0.8, 0.6}, NotTouching)
	c.AddExample(Embedding{0, 1}, Touching)

	// Similarities to the query are 0.6 (not touching) and 1.0 (touching)
	result, err := c.Predict(Embedding{0, 1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if result.Label != Touching {
		t.Errorf("Label = %v, want Touching", result.Label)
	}
	if !floatEqual(result.Confidence(Touching), 1.0/1.6) {
		t.Errorf("Confidence(Touching) = %f, want %f", result.Confidence(Touching), 1.0/1.6)
	}
	if !floatEqual(result.Confidence(NotTouching), 0.6/1.6) {
		t.Errorf("Confidence(NotTouching) = %f, want %f", result.Confidence(NotTouching), 0.6/1.6)
	}
}

func TestClassifier_Predict_NegativeSimilarityFallsBackToVotes(t *testing.T) {
	c := New(WithK(2))
	c.AddExample(Embedding{1, 0}, NotTouching)
	c.AddExample(Embedding{0, 1}, Touching)

	result, err := c.Predict(Embedding{-1, -1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if !floatEqual(result.Confidences[0], 0.5) || !floatEqual(result.Confidences[1], 0.5) {
		t.Errorf("expected even split, got %v", result.Confidences)
	}
	// Ties go to the lower label
	if result.Label != NotTouching {
		t.Errorf("Label = %v, want NotTouching on tie", result.Label)
	}
}

func TestClassifier_Predict_Deterministic(t *testing.T) {
	c := New()
	vectors := []Embedding{{1, 0.2}, {0.9, 0.3}, {0.2, 1}, {0.4, 0.8}, {0.5, 0.5}, {0.6, 0.4}}
	for i, v := range vectors {
		c.AddExample(v, Label(i%2))
	}

	query := Embedding{0.55, 0.45}
	first, err := c.Predict(query)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := c.Predict(query)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if again != first {
			t.Fatalf("prediction %d = %+v, want %+v", i, again, first)
		}
	}
}

func TestClassifier_NumClasses(t *testing.T) {
	c := New()
	if c.NumClasses() != 0 {
		t.Errorf("NumClasses() = %d, want 0", c.NumClasses())
	}
	c.AddExample(Embedding{1}, Touching)
	if c.NumClasses() != 1 {
		t.Errorf("NumClasses() = %d, want 1", c.NumClasses())
	}
	c.AddExample(Embedding{1}, NotTouching)
	if c.NumClasses() != 2 {
		t.Errorf("NumClasses() = %d, want 2", c.NumClasses())
	}
}

func TestLabel_String(t *testing.T) {
	if NotTouching.String() != "not touching" {
		t.Errorf("NotTouching.String() = %q", NotTouching.String())
	}
	if Touching.String() != "touching" {
		t.Errorf("Touching.String() = %q", Touching.String())
	}
	if Label(5).String() != "label(5)" {
		t.Errorf("Label(5).String() = %q", Label(5).String())
	}
}
