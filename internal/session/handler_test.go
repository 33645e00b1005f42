package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"slidecast/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

type staticSource struct {
	snap Snapshot
}

func (s staticSource) Snapshot() Snapshot { return s.snap }

func newTestRouter(src StatusSource, m *metrics.Metrics) *chi.Mux {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(src, log, m).Router()
}

func TestHandler_GetSession(t *testing.T) {
	src := staticSource{snap: Snapshot{
		ID:             "abc",
		Phase:          PhaseSlides,
		Title:          "Q3 Results",
		StartedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Captured:       map[Slot]string{SlotManifest: "https://cdn.example/a.mpd"},
		TimelineSlides: 7,
	}}
	r := newTestRouter(src, nil)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "abc" || got.Phase != PhaseSlides || got.TimelineSlides != 7 {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if got.Captured[SlotManifest] != "https://cdn.example/a.mpd" {
		t.Errorf("captured manifest not reported: %v", got.Captured)
	}
	if got.Outputs != nil {
		t.Errorf("expected no outputs yet, got %+v", got.Outputs)
	}
}

func TestHandler_GetSession_failed(t *testing.T) {
	r := newTestRouter(staticSource{snap: Snapshot{ID: "abc", Phase: PhaseFailed, MediaError: "remux failed"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"media_error":"remux failed"`) {
		t.Errorf("expected media error in body, got %s", rec.Body.String())
	}
}

func TestHandler_Healthz(t *testing.T) {
	r := newTestRouter(staticSource{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_metrics(t *testing.T) {
	m := metrics.New()
	r := newTestRouter(staticSource{snap: Snapshot{Phase: PhaseMedia}}, m)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "slidecast_status_requests_total") {
		t.Errorf("expected status request counter in metrics output")
	}
}

func TestHandler_metrics_disabled(t *testing.T) {
	r := newTestRouter(staticSource{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
