// Package embedding turns video frames into fixed-length feature vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/nofacetouch/internal/classifier"
)

// ErrExtraction wraps every failure to derive an embedding from a frame.
// Callers treat it as transient: the current tick or cycle is skipped.
var ErrExtraction = errors.New("embedding extraction failed")

// Extractor defines the interface for frame embedding implementations.
type Extractor interface {
	// Extract computes the embedding of a frame. It is deterministic for a
	// fixed frame and model. The frame remains owned by the caller.
	Extract(ctx context.Context, frame *gocv.Mat) (classifier.Embedding, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendAuto      = "auto"
	BackendDNN       = "dnn"
	BackendService   = "service"
	BackendThumbnail = "thumbnail"
)

// Config selects and configures an extractor backend.
type Config struct {
	Backend string
	DNN     DNNConfig
	Service ServiceConfig
	Thumb   ThumbnailConfig
}

// DefaultConfig returns a Config that picks the DNN backend when a model is
// configured and falls back to thumbnails otherwise.
func DefaultConfig() Config {
	return Config{
		Backend: BackendAuto,
		DNN:     DefaultDNNConfig(),
		Service: DefaultServiceConfig(),
		Thumb:   DefaultThumbnailConfig(),
	}
}

// New creates the extractor named by cfg.Backend.
func New(cfg Config) (Extractor, error) {
	switch cfg.Backend {
	case BackendDNN:
		return NewDNNExtractor(cfg.DNN)
	case BackendService:
		return NewServiceExtractor(cfg.Service)
	case BackendThumbnail:
		return NewThumbnailExtractor(cfg.Thumb), nil
	case BackendAuto, "":
		if cfg.DNN.ModelPath != "" {
			return NewDNNExtractor(cfg.DNN)
		}
		return NewThumbnailExtractor(cfg.Thumb), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

// extractionError wraps err so that it matches both ErrExtraction and err.
func extractionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExtraction) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExtraction, err)
}

// checkFrame rejects nil or empty frames before any work is done.
func checkFrame(ctx context.Context, frame *gocv.Mat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if frame == nil || frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrExtraction)
	}
	return nil
}

// normalize scales v to unit length in place. Zero vectors are left unchanged.
func normalize(v classifier.Embedding) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum < 1e-12 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// center subtracts the mean from every component in place.
func center(v classifier.Embedding) {
	if len(v) == 0 {
		return
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	mean := sum / float64(len(v))
	for i := range v {
		v[i] = float32(float64(v[i]) - mean)
	}
}
