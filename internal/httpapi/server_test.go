package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inferd/internal/engine"
	"inferd/internal/manager"
	"inferd/internal/runtime"
	"inferd/pkg/types"
)

// fakeService implements Service for handler tests.
type fakeService struct {
	models []types.Model
	ready  bool
	genErr error
	resp   types.GenerateResponse
	lastReq types.GenerateRequest
}

func (f *fakeService) ListModels() []types.Model    { return f.models }
func (f *fakeService) Switch(ctx context.Context, modelID string) (string, error) {
	return "op-1", nil
}
func (f *fakeService) Status() types.StatusResponse { return types.StatusResponse{State: "ready"} }
func (f *fakeService) Ready() bool                  { return f.ready }

func (f *fakeService) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	f.lastReq = req
	if f.genErr != nil {
		return types.GenerateResponse{}, f.genErr
	}
	return f.resp, nil
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestModelsEndpoint(t *testing.T) {
	svc := &fakeService{models: []types.Model{{ID: "m1"}}}
	h := NewMux(svc)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp types.ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].ID != "m1" {
		t.Fatalf("unexpected models: %+v", resp.Models)
	}
}

func TestGenerateHappyPath(t *testing.T) {
	svc := &fakeService{resp: types.GenerateResponse{Results: []string{"hello"}}}
	h := NewMux(svc)
	rec := postJSON(t, h, "/generate", `{"prompts":["hi"],"max_tokens":8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0] != "hello" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if svc.lastReq.MaxTokens != 8 {
		t.Fatalf("request not forwarded, got %+v", svc.lastReq)
	}
}

func TestGenerateValidation(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	rec := postJSON(t, h, "/generate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request: expected 400 got %d", rec.Code)
	}

	rec = postJSON(t, h, "/generate", `{"prompts":["ok","  "]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt: expected 400 got %d", rec.Code)
	}

	rec = postJSON(t, h, "/generate", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompts":["x"]}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type: expected 415 got %d", rr.Code)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"model not found", manager.ErrModelNotFound("nope"), http.StatusNotFound},
		{"too busy", manager.ErrTooBusy("m1"), http.StatusTooManyRequests},
		{"runtime unavailable", runtime.ErrUnavailable("not built"), http.StatusServiceUnavailable},
		{"invalid args", engine.ErrInvalidArguments("no prompts"), http.StatusBadRequest},
		{"generic", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &fakeService{genErr: tc.err}
		h := NewMux(svc)
		rec := postJSON(t, h, "/generate", `{"prompts":["x"]}`)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, rec.Code)
		}
		var resp types.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if resp.Code != tc.want {
			t.Fatalf("%s: body code %d != %d", tc.name, resp.Code, tc.want)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	svc := &fakeService{ready: false}
	h := NewMux(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz not ready: expected 503 got %d", rec.Code)
	}

	svc.ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz ready: expected 200 got %d", rec.Code)
	}
}

func TestSwitchEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	rec := postJSON(t, h, "/switch", `{"model":"m1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	rec = postJSON(t, h, "/switch", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing model: expected 400 got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", rec.Code)
	}
	// The in-flight gauge for this very request is live while the registry
	// is gathered, so it is always present.
	if !strings.Contains(rec.Body.String(), "inferd_http_inflight_requests") {
		t.Fatalf("expected inferd http metrics in output")
	}
}
