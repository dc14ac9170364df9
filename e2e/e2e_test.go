package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/app"
	"github.com/ayusman/nofacetouch/internal/capture"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/clock"
	"github.com/ayusman/nofacetouch/internal/config"
	"github.com/ayusman/nofacetouch/internal/embedding"
	"github.com/ayusman/nofacetouch/internal/server"
	"github.com/ayusman/nofacetouch/internal/store"
)

type silentPlayer struct{}

func (silentPlayer) Play() {}

type statusBody struct {
	Phase      string  `json:"phase"`
	Step       int     `json:"step"`
	IsTouching bool    `json:"is_touching"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

type touchesBody struct {
	Touches []json.RawMessage `json:"touches"`
	Total   int               `json:"total"`
}

func TestE2E_TrainAndDetectOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	camera := capture.NewBlankMockCamera()
	defer camera.Release()
	extractor := embedding.NewMockExtractor()

	settings := config.Default()
	settings.History.Path = store.MemoryPath

	application, err := app.New(app.Config{
		Settings:  settings,
		Camera:    camera,
		Extractor: extractor,
		Player:    silentPlayer{},
		Clock:     clock.NewFake(),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer application.Stop()

	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	srv := server.New(server.Config{
		Hub:     application.Hub(),
		Trainer: application,
		Store:   application.Store(),
		Logger:  logger,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	post := func(t *testing.T, path, body string) int {
		t.Helper()
		resp, err := client.Post(ts.URL+path, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s error = %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	getStatus := func(t *testing.T) statusBody {
		t.Helper()
		resp, err := client.Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatalf("GET /api/status error = %v", err)
		}
		defer resp.Body.Close()

		var s statusBody
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return s
	}

	waitStatus := func(t *testing.T, what string, cond func(statusBody) bool) statusBody {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			s := getStatus(t)
			if cond(s) {
				return s
			}
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s, last status %+v", what, s)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	t.Run("RecordNotTouching", func(t *testing.T) {
		extractor.SetEmbedding(classifier.Embedding{1, 0, 0})
		if code := post(t, "/api/training/sessions", `{"label": 0}`); code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", code, http.StatusAccepted)
		}
		waitStatus(t, "step 1 done", func(s statusBody) bool {
			return s.Phase == "idle" && s.Step == 1
		})
	})

	t.Run("ReadyTooEarly", func(t *testing.T) {
		if code := post(t, "/api/training/ready", ``); code != http.StatusConflict {
			t.Errorf("status = %d, want %d", code, http.StatusConflict)
		}
	})

	t.Run("RecordTouching", func(t *testing.T) {
		extractor.SetEmbedding(classifier.Embedding{0, 0, 1})
		if code := post(t, "/api/training/sessions", `{"label": 1}`); code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", code, http.StatusAccepted)
		}
		waitStatus(t, "step 2 done", func(s statusBody) bool {
			return s.Phase == "idle" && s.Step == 2
		})
	})

	t.Run("Detect", func(t *testing.T) {
		if code := post(t, "/api/training/ready", ``); code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", code, http.StatusAccepted)
		}

		s := waitStatus(t, "touching", func(s statusBody) bool {
			return s.Phase == "detecting" && s.IsTouching
		})
		if s.Label != "touching" {
			t.Errorf("label = %q, want touching", s.Label)
		}

		extractor.SetEmbedding(classifier.Embedding{1, 0, 0})
		s = waitStatus(t, "not touching", func(s statusBody) bool {
			return s.Phase == "detecting" && !s.IsTouching
		})
		if s.Label != "not touching" {
			t.Errorf("label = %q, want not touching", s.Label)
		}
	})

	t.Run("TrainingClosed", func(t *testing.T) {
		if code := post(t, "/api/training/sessions", `{"label": 0}`); code != http.StatusConflict {
			t.Errorf("status = %d, want %d", code, http.StatusConflict)
		}
	})

	t.Run("History", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/touches")
		if err != nil {
			t.Fatalf("GET /api/touches error = %v", err)
		}
		defer resp.Body.Close()

		var body touchesBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode touches: %v", err)
		}
		if body.Total != 1 || len(body.Touches) != 1 {
			t.Errorf("touches = %d (total %d), want 1", len(body.Touches), body.Total)
		}
	})
}
