package embedding

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/nofacetouch/internal/classifier"
)

// ThumbnailConfig sets the size of the grayscale thumbnail used as an embedding.
type ThumbnailConfig struct {
	Width  int
	Height int
}

// DefaultThumbnailConfig returns a 32x24 thumbnail, matching the 4:3 capture aspect.
func DefaultThumbnailConfig() ThumbnailConfig {
	return ThumbnailConfig{Width: 32, Height: 24}
}

// ThumbnailExtractor embeds a frame as its downscaled grayscale pixels.
// It needs no model files and is the fallback when no network is configured.
type ThumbnailExtractor struct {
	size image.Point
}

// NewThumbnailExtractor creates a ThumbnailExtractor. Non-positive sizes use the defaults.
func NewThumbnailExtractor(config ThumbnailConfig) *ThumbnailExtractor {
	def := DefaultThumbnailConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	return &ThumbnailExtractor{size: image.Pt(config.Width, config.Height)}
}

// Dim returns the embedding length.
func (t *ThumbnailExtractor) Dim() int {
	return t.size.X * t.size.Y
}

// Extract converts the frame to grayscale, area-resizes it and returns the
// zero-mean, unit-length pixel vector.
func (t *ThumbnailExtractor) Extract(ctx context.Context, frame *gocv.Mat) (classifier.Embedding, error) {
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, t.size, 0, 0, gocv.InterpolationArea)

	pixels := small.ToBytes()
	emb := make(classifier.Embedding, len(pixels))
	for i, p := range pixels {
		emb[i] = float32(p) / 255
	}

	center(emb)
	normalize(emb)

	return emb, nil
}

// Close is a no-op for the thumbnail extractor.
func (t *ThumbnailExtractor) Close() error {
	return nil
}
