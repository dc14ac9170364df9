package store

import (
	"errors"
	"testing"
	"time"
)

// newTestStore creates a new Store with an in-memory database for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestTouchEventRepository_StartAndEnd(t *testing.T) {
	repo := newTestStore(t).TouchEvents()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e, err := repo.Start(start, 0.93)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("Start() should assign an ID")
	}
	if !e.Open() {
		t.Error("new event should be open")
	}

	got, err := repo.GetByID(e.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}

	end := start.Add(1500 * time.Millisecond)
	if err := repo.End(e.ID, end, 0.97, 12); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err = repo.GetByID(e.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Open() {
		t.Fatal("event should be closed after End")
	}
	if got.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got.Duration())
	}
	if got.PeakConfidence != 0.97 {
		t.Errorf("PeakConfidence = %f, want 0.97", got.PeakConfidence)
	}
	if got.Cycles != 12 {
		t.Errorf("Cycles = %d, want 12", got.Cycles)
	}
}

func TestTouchEventRepository_EndKeepsHigherPeak(t *testing.T) {
	repo := newTestStore(t).TouchEvents()

	e, err := repo.Start(time.Now(), 0.99)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.End(e.ID, time.Now(), 0.92, 0); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, _ := repo.GetByID(e.ID)
	if got.PeakConfidence != 0.99 {
		t.Errorf("PeakConfidence = %f, want 0.99", got.PeakConfidence)
	}
	if got.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", got.Cycles)
	}
}

func TestTouchEventRepository_EndErrors(t *testing.T) {
	repo := newTestStore(t).TouchEvents()

	if err := repo.End("missing", time.Now(), 0.9, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("End(missing) error = %v, want ErrNotFound", err)
	}

	e, _ := repo.Start(time.Now(), 0.95)
	if err := repo.End(e.ID, time.Now(), 0.95, 1); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := repo.End(e.ID, time.Now(), 0.95, 1); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("second End() error = %v, want ErrAlreadyEnded", err)
	}
}

func TestTouchEventRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).TouchEvents()

	if _, err := repo.GetByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestTouchEventRepository_ListAndCount(t *testing.T) {
	repo := newTestStore(t).TouchEvents()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 4; i++ {
		e, err := repo.Start(base.Add(time.Duration(i)*time.Minute), 0.91)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		ids = append(ids, e.ID)
	}

	n, err := repo.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() = %d, want 4", n)
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 0, want: []string{ids[3], ids[2], ids[1], ids[0]}},
		{name: "limited", limit: 2, want: []string{ids[3], ids[2]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.List(tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("List() returned %d events, want %d", len(events), len(tt.want))
			}
			for i, e := range events {
				if e.ID != tt.want[i] {
					t.Errorf("event %d = %s, want %s", i, e.ID, tt.want[i])
				}
			}
		})
	}
}

func TestTouchEventRepository_CloseOpen(t *testing.T) {
	repo := newTestStore(t).TouchEvents()

	a, _ := repo.Start(time.Now(), 0.95)
	b, _ := repo.Start(time.Now(), 0.95)
	repo.End(a.ID, time.Now(), 0.95, 1)

	n, err := repo.CloseOpen(time.Now())
	if err != nil {
		t.Fatalf("CloseOpen() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CloseOpen() closed %d events, want 1", n)
	}

	got, _ := repo.GetByID(b.ID)
	if got.Open() {
		t.Error("event should be closed")
	}
}
