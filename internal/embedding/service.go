package embedding

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/nofacetouch/internal/classifier"
)

// ServiceConfig describes a local helper process that computes embeddings.
//
// For each frame the extractor writes a 4-byte big-endian length followed by
// the JPEG-encoded frame to the helper's stdin and reads one JSON line
// {"embedding": [...], "error": "..."} from its stdout.
type ServiceConfig struct {
	// Command is the helper executable followed by its arguments.
	Command []string
	// IdleTimeout stops the helper after this long without requests. Zero disables it.
	IdleTimeout time.Duration
}

// DefaultServiceConfig returns a config for the bundled Python helper.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Command:     []string{"python3", "scripts/embedding_service.py"},
		IdleTimeout: 30 * time.Second,
	}
}

// ServiceExtractor implements Extractor using a helper subprocess.
// The process is started lazily on first use and restarted after idling.
type ServiceExtractor struct {
	config    ServiceConfig
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer

	// generation counts uses; an idle callback from an older use is stale
	generation uint64
}

// NewServiceExtractor validates that the helper executable exists.
func NewServiceExtractor(config ServiceConfig) (*ServiceExtractor, error) {
	if len(config.Command) == 0 {
		return nil, errors.New("embedding service command not configured")
	}
	if _, err := exec.LookPath(config.Command[0]); err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	return &ServiceExtractor{config: config}, nil
}

// Extract sends the frame to the helper and returns the normalised embedding.
// If ctx ends while waiting on the helper, the helper is killed so the next
// call starts a fresh one.
func (s *ServiceExtractor) Extract(ctx context.Context, frame *gocv.Mat) (classifier.Embedding, error) {
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	if err := s.ensureStarted(); err != nil {
		return nil, extractionError(err)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, extractionError(fmt.Errorf("encode frame: %w", err))
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	type reply struct {
		emb classifier.Embedding
		err error
	}
	done := make(chan reply, 1)
	stdin, stdout := s.stdin, s.stdout
	go func() {
		emb, err := roundTrip(stdin, stdout, data)
		done <- reply{emb, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			// The stream may be out of sync; start fresh on the next frame
			s.shutdown()
			return nil, extractionError(r.err)
		}
		s.resetIdleTimer()
		return r.emb, nil
	case <-ctx.Done():
		s.kill()
		return nil, ctx.Err()
	}
}

func roundTrip(stdin io.Writer, stdout *bufio.Reader, data []byte) (classifier.Embedding, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
		Error     string    `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, errors.New(response.Error)
	}
	if len(response.Embedding) == 0 {
		return nil, errors.New("service returned an empty embedding")
	}

	emb := classifier.Embedding(response.Embedding)
	normalize(emb)
	return emb, nil
}

// Close shuts down the helper process.
func (s *ServiceExtractor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

func (s *ServiceExtractor) ensureStarted() error {
	if s.started {
		return nil
	}

	s.cmd = exec.Command(s.config.Command[0], s.config.Command[1:]...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start embedding service: %w", err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true

	return nil
}

func (s *ServiceExtractor) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	return err
}

// kill stops a helper that is not responding. Callers hold s.mu.
func (s *ServiceExtractor) kill() {
	if s.started && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.shutdown()
}

// resetIdleTimer schedules a shutdown for the current generation. Callers hold s.mu.
func (s *ServiceExtractor) resetIdleTimer() {
	if s.config.IdleTimeout <= 0 {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	gen := s.generation
	s.idleTimer = time.AfterFunc(s.config.IdleTimeout, func() {
		s.idle(gen)
	})
}

// idle shuts the helper down unless it was used after generation gen.
func (s *ServiceExtractor) idle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	s.shutdown()
}
