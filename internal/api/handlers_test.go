// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/songrules/internal/actor"
	"github.com/tomtom215/songrules/internal/models"
	"github.com/tomtom215/songrules/internal/rules"
)

// fakeRules is a RuleService with canned answers.
type fakeRules struct {
	query      func(ctx context.Context, songs []string) (rules.Recommendation, error)
	status     rules.Status
	statusErr  error
	recheckErr error
	rechecks   atomic.Int32
	lastSongs  atomic.Value
}

func (f *fakeRules) Query(ctx context.Context, songs []string) (rules.Recommendation, error) {
	f.lastSongs.Store(songs)
	if f.query == nil {
		return rules.Recommendation{}, nil
	}
	return f.query(ctx, songs)
}

func (f *fakeRules) Recheck(context.Context) error {
	f.rechecks.Add(1)
	return f.recheckErr
}

func (f *fakeRules) Status(context.Context) (rules.Status, error) {
	return f.status, f.statusErr
}

func loadedRules() *fakeRules {
	return &fakeRules{
		status: rules.Status{Timestamp: 42, Label: "2026-03-01 12:00:00", Rules: 10, Antecedents: 4},
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func postRecommend(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Recommend(w, req)
	return w
}

func TestHandlerConfigDefaults(t *testing.T) {
	t.Parallel()

	h := NewHandler(loadedRules(), HandlerConfig{})
	if h.config.Version != "dev" {
		t.Errorf("Version = %q, want dev", h.config.Version)
	}
	if h.config.QueryTimeout != 30*time.Second {
		t.Errorf("QueryTimeout = %v, want 30s", h.config.QueryTimeout)
	}
	if h.config.StatusTimeout != 2*time.Second {
		t.Errorf("StatusTimeout = %v, want 2s", h.config.StatusTimeout)
	}
}

func TestRecommend_Success(t *testing.T) {
	t.Parallel()

	fake := loadedRules()
	fake.query = func(_ context.Context, songs []string) (rules.Recommendation, error) {
		return rules.Recommendation{IDs: []string{"Bad Guy", "Humble"}, Label: "2026-03-01 12:00:00"}, nil
	}
	h := NewHandler(fake, HandlerConfig{Version: "1.2.3"})

	w := postRecommend(h, `{"songs":["Yesterday","Hey Jude"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp models.RecommendResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.PlaylistIDs) != 2 || resp.PlaylistIDs[0] != "Bad Guy" || resp.PlaylistIDs[1] != "Humble" {
		t.Errorf("playlist_ids = %v", resp.PlaylistIDs)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.ModelDate != "2026-03-01 12:00:00" {
		t.Errorf("model_date = %q", resp.ModelDate)
	}

	songs, _ := fake.lastSongs.Load().([]string)
	if len(songs) != 2 || songs[0] != "Yesterday" || songs[1] != "Hey Jude" {
		t.Errorf("query songs = %v", songs)
	}
}

func TestRecommend_EmptyResultIsArray(t *testing.T) {
	t.Parallel()

	fake := loadedRules()
	fake.query = func(context.Context, []string) (rules.Recommendation, error) {
		return rules.Recommendation{Label: "x"}, nil
	}
	w := postRecommend(NewHandler(fake, HandlerConfig{}), `{"songs":["unknown"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"playlist_ids":[]`) {
		t.Errorf("body = %s, want empty playlist_ids array", w.Body.String())
	}
}

func TestRecommend_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed json", `{"songs":`},
		{"wrong type", `{"songs":"Yesterday"}`},
		{"missing songs", `{}`},
		{"empty songs", `{"songs":[]}`},
		{"blank song", `{"songs":["Yesterday","   "]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := loadedRules()
			w := postRecommend(NewHandler(fake, HandlerConfig{}), tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
			resp := decodeEnvelope(t, w)
			if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v, want VALIDATION_ERROR", resp.Error)
			}
			if fake.lastSongs.Load() != nil {
				t.Error("rule server was queried for an invalid request")
			}
		})
	}
}

func TestRecommend_TooManySongs(t *testing.T) {
	t.Parallel()

	songs := make([]string, models.MaxRecommendSongs+1)
	for i := range songs {
		songs[i] = "song"
	}
	body, err := json.Marshal(models.RecommendRequest{Songs: songs})
	if err != nil {
		t.Fatal(err)
	}

	w := postRecommend(NewHandler(loadedRules(), HandlerConfig{}), string(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecommend_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		queryErr   error
		statusErr  error
		wantStatus int
		wantCode   string
	}{
		{"rule server stopped", actor.ErrDisconnected, nil, http.StatusServiceUnavailable, "RULES_UNAVAILABLE"},
		{"timeout before first load", context.DeadlineExceeded, rules.ErrNotLoaded, http.StatusServiceUnavailable, "RULES_NOT_LOADED"},
		{"timeout while loaded", context.DeadlineExceeded, nil, http.StatusGatewayTimeout, "QUERY_TIMEOUT"},
		{"unexpected failure", errors.New("boom"), nil, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := loadedRules()
			fake.statusErr = tt.statusErr
			fake.query = func(context.Context, []string) (rules.Recommendation, error) {
				return rules.Recommendation{}, tt.queryErr
			}

			w := postRecommend(NewHandler(fake, HandlerConfig{}), `{"songs":["Yesterday"]}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeEnvelope(t, w)
			if resp.Status != "error" {
				t.Errorf("envelope status = %q, want error", resp.Status)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestRecommend_WaitsUpToQueryTimeout(t *testing.T) {
	t.Parallel()

	fake := &fakeRules{statusErr: rules.ErrNotLoaded}
	fake.query = func(ctx context.Context, _ []string) (rules.Recommendation, error) {
		<-ctx.Done()
		return rules.Recommendation{}, ctx.Err()
	}
	h := NewHandler(fake, HandlerConfig{QueryTimeout: 20 * time.Millisecond})

	start := time.Now()
	w := postRecommend(h, `{"songs":["Yesterday"]}`)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the query timeout", elapsed)
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != "RULES_NOT_LOADED" {
		t.Errorf("error = %+v, want RULES_NOT_LOADED", resp.Error)
	}
}

func TestRecommend_ClientGone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fake := loadedRules()
	fake.query = func(context.Context, []string) (rules.Recommendation, error) {
		cancel()
		return rules.Recommendation{}, context.Canceled
	}
	h := NewHandler(fake, HandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader(`{"songs":["a"]}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	h.Recommend(w, req)

	if w.Body.Len() != 0 {
		t.Errorf("wrote %q for an abandoned request", w.Body.String())
	}
}

func TestRulesStatus(t *testing.T) {
	t.Parallel()

	t.Run("loaded", func(t *testing.T) {
		h := NewHandler(loadedRules(), HandlerConfig{})
		w := httptest.NewRecorder()
		h.RulesStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules/status", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp struct {
			Status string             `json:"status"`
			Data   models.RulesStatus `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		want := models.RulesStatus{Loaded: true, Timestamp: 42, ModelDate: "2026-03-01 12:00:00", Rules: 10, Antecedents: 4}
		if resp.Data != want {
			t.Errorf("data = %+v, want %+v", resp.Data, want)
		}
	})

	t.Run("not loaded", func(t *testing.T) {
		h := NewHandler(&fakeRules{statusErr: rules.ErrNotLoaded}, HandlerConfig{})
		w := httptest.NewRecorder()
		h.RulesStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules/status", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != "RULES_NOT_LOADED" {
			t.Errorf("error = %+v, want RULES_NOT_LOADED", resp.Error)
		}
	})

	t.Run("stopped", func(t *testing.T) {
		h := NewHandler(&fakeRules{statusErr: actor.ErrDisconnected}, HandlerConfig{})
		w := httptest.NewRecorder()
		h.RulesStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules/status", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != "RULES_UNAVAILABLE" {
			t.Errorf("error = %+v, want RULES_UNAVAILABLE", resp.Error)
		}
	})
}

func TestRulesReload(t *testing.T) {
	t.Parallel()

	t.Run("queued", func(t *testing.T) {
		fake := loadedRules()
		h := NewHandler(fake, HandlerConfig{})
		w := httptest.NewRecorder()
		h.RulesReload(w, httptest.NewRequest(http.MethodPost, "/api/v1/rules/reload", nil))

		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", w.Code)
		}
		if got := fake.rechecks.Load(); got != 1 {
			t.Errorf("rechecks = %d, want 1", got)
		}
	})

	t.Run("stopped", func(t *testing.T) {
		fake := &fakeRules{recheckErr: actor.ErrDisconnected}
		h := NewHandler(fake, HandlerConfig{})
		w := httptest.NewRecorder()
		h.RulesReload(w, httptest.NewRequest(http.MethodPost, "/api/v1/rules/reload", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != "RULES_UNAVAILABLE" {
			t.Errorf("error = %+v, want RULES_UNAVAILABLE", resp.Error)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("live while unloaded", func(t *testing.T) {
		h := NewHandler(&fakeRules{statusErr: rules.ErrNotLoaded}, HandlerConfig{})
		w := httptest.NewRecorder()
		h.HealthLive(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	tests := []struct {
		name       string
		fake       *fakeRules
		wantStatus int
		wantState  string
	}{
		{"ready when loaded", loadedRules(), http.StatusOK, "ready"},
		{"not ready before load", &fakeRules{statusErr: rules.ErrNotLoaded}, http.StatusServiceUnavailable, "not_ready"},
		{"not ready after stop", &fakeRules{statusErr: actor.ErrDisconnected}, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.fake, HandlerConfig{})
			w := httptest.NewRecorder()
			h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decodeEnvelope(t, w); resp.Status != tt.wantState {
				t.Errorf("envelope status = %q, want %q", resp.Status, tt.wantState)
			}
		})
	}
}

func TestHome(t *testing.T) {
	t.Parallel()

	h := NewHandler(loadedRules(), HandlerConfig{Version: "2.0.0"})
	w := httptest.NewRecorder()
	h.Home(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var banner models.Banner
	if err := json.Unmarshal(w.Body.Bytes(), &banner); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if banner.Name != "songrules" || banner.Version != "2.0.0" {
		t.Errorf("banner = %+v", banner)
	}
	if banner.ModelDate != "2026-03-01 12:00:00" {
		t.Errorf("model_date = %q", banner.ModelDate)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
	if got := sanitizeLogValue("plain"); got != "plain" {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}
