package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/nofacetouch/internal/classifier"
)

// DNNConfig describes a pretrained image model loaded through OpenCV's dnn module.
type DNNConfig struct {
	// ModelPath is the network weights file (ONNX, Caffe, TensorFlow...).
	ModelPath string
	// ConfigPath is the optional network description file.
	ConfigPath string
	// OutputLayer names the layer whose activation is used as the embedding.
	// Empty selects the network's final output.
	OutputLayer string
	// InputSize is the square input resolution expected by the model.
	InputSize int
	// Scale multiplies pixel values after mean subtraction.
	Scale float64
	// Mean is subtracted from each channel.
	Mean float64
	// SwapRB converts OpenCV's BGR frames to RGB.
	SwapRB bool
}

// DefaultDNNConfig returns MobileNet-style preprocessing: 224x224 RGB scaled to [-1, 1].
func DefaultDNNConfig() DNNConfig {
	return DNNConfig{
		InputSize: 224,
		Scale:     1.0 / 127.5,
		Mean:      127.5,
		SwapRB:    true,
	}
}

// DNNExtractor computes embeddings with a pretrained network.
type DNNExtractor struct {
	config DNNConfig
	net    gocv.Net
	mu     sync.Mutex
	closed bool
}

// NewDNNExtractor loads the model described by config.
func NewDNNExtractor(config DNNConfig) (*DNNExtractor, error) {
	if config.ModelPath == "" {
		return nil, errors.New("dnn model path not configured")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("dnn model: %w", err)
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultDNNConfig().InputSize
	}
	if config.Scale == 0 {
		config.Scale = DefaultDNNConfig().Scale
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("dnn model %s could not be loaded", config.ModelPath)
	}

	return &DNNExtractor{
		config: config,
		net:    net,
	}, nil
}

// Extract runs the frame through the network and returns the L2-normalised activation.
func (d *DNNExtractor) Extract(ctx context.Context, frame *gocv.Mat) (classifier.Embedding, error) {
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: extractor closed", ErrExtraction)
	}

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	mean := gocv.NewScalar(d.config.Mean, d.config.Mean, d.config.Mean, 0)

	blob := gocv.BlobFromImage(*frame, d.config.Scale, size, mean, d.config.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward(d.config.OutputLayer)
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("%w: network produced no output", ErrExtraction)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, extractionError(fmt.Errorf("read activation: %w", err))
	}

	// The activation lives in Mat memory that is freed on Close
	emb := make(classifier.Embedding, len(data))
	copy(emb, data)
	normalize(emb)

	return emb, nil
}

// Close releases the network.
func (d *DNNExtractor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
