package embedding

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/nofacetouch/internal/classifier"
)

// MockExtractor is a test implementation of the Extractor interface.
// It allows tests to control the embeddings and failures returned.
type MockExtractor struct {
	mu        sync.Mutex
	embedding classifier.Embedding
	queue     []classifier.Embedding
	failures  []error
	err       error
	calls     int
}

// NewMockExtractor creates a MockExtractor returning a fixed one-hot embedding.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{embedding: classifier.Embedding{1, 0}}
}

// SetEmbedding sets the embedding returned when the queue is empty.
func (m *MockExtractor) SetEmbedding(e classifier.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedding = e
}

// Enqueue adds embeddings that are returned, in order, before the default one.
func (m *MockExtractor) Enqueue(es ...classifier.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, es...)
}

// SetError makes every call fail with err until cleared with nil.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailNext makes the next n calls fail with err.
func (m *MockExtractor) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, err)
	}
}

// Calls returns how many times Extract was called.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Extract returns the next queued failure or embedding. The frame is ignored.
func (m *MockExtractor) Extract(ctx context.Context, frame *gocv.Mat) (classifier.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, extractionError(err)
	}
	if m.err != nil {
		return nil, extractionError(m.err)
	}
	if len(m.queue) > 0 {
		e := m.queue[0]
		m.queue = m.queue[1:]
		return e, nil
	}

	out := make(classifier.Embedding, len(m.embedding))
	copy(out, m.embedding)
	return out, nil
}

// Close is a no-op for the mock extractor.
func (m *MockExtractor) Close() error {
	return nil
}
