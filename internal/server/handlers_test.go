package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/provider"
	"recursive-companion/internal/session"
	"recursive-companion/internal/storage/memory"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (g *fakeGenerator) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", fmt.Errorf("upstream unavailable")
	}
	g.calls++
	return fmt.Sprintf("generated %d", g.calls), nil
}

type fakeScorer struct{ score float64 }

func (s fakeScorer) Similarity(ctx context.Context, a, b string) (float64, error) {
	return s.score, nil
}

type testEnv struct {
	handler *Handler
	gen     *fakeGenerator
	store   *memory.Store
	reg     *session.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gen := &fakeGenerator{}
	store := memory.New()
	logger := slog.New(slog.DiscardHandler)
	reg := session.NewRegistry(gen, fakeScorer{score: 0.5}, time.Hour, logger)
	return &testEnv{
		handler: NewHandler(reg, store, logger),
		gen:     gen,
		store:   store,
		reg:     reg,
	}
}

func (e *testEnv) serve(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv := New(0, time.Minute, slog.New(slog.DiscardHandler), e.handler)
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandleLoop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		AgentType: "generic",
		Query:     "explain dns",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[loopResponse](t, rec)
	if resp.SessionID == "" {
		t.Error("expected a minted session id")
	}
	if resp.StopReason != "max_iterations" {
		t.Errorf("stop_reason = %q, want max_iterations", resp.StopReason)
	}
	if resp.Content == "" {
		t.Error("expected final content")
	}
	if resp.Iterations != 3 {
		t.Errorf("iterations = %d, want default 3", resp.Iterations)
	}
}

func TestHandleLoop_PersistsSlot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		SessionID: "s1",
		AgentType: "generic",
		Query:     "explain dns",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	recs, err := env.store.ListSlots(context.Background(), "s1", "generic")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("persisted %d slots, want 1", len(recs))
	}
	if recs[0].Query != "explain dns" || recs[0].StopReason != "max_iterations" {
		t.Errorf("persisted record = %+v", recs[0])
	}
}

func TestHandleLoop_GenerationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gen.fail = true

	rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		AgentType: "generic",
		Query:     "q",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error.Type != "generation_service" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestHandleLoop_UnknownAgentType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		AgentType: "numerology",
		Query:     "q",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLoop_BadJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/loop", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv := New(0, time.Minute, slog.New(slog.DiscardHandler), env.handler)
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePhase_FullCycle(t *testing.T) {
	env := newTestEnv(t)

	draft := env.serve(t, http.MethodPost, "/v1/phase/draft", phaseRequest{
		SessionID: "s1",
		AgentType: "generic",
		Query:     "q",
	})
	if draft.Code != http.StatusOK {
		t.Fatalf("draft status = %d, body %s", draft.Code, draft.Body.String())
	}
	dresp := decode[phaseResponse](t, draft)
	if !dresp.Created || dresp.Phase != "draft" || dresp.Done {
		t.Errorf("draft response = %+v", dresp)
	}

	critique := env.serve(t, http.MethodPost, "/v1/phase/critique", phaseRequest{
		SessionID: "s1",
		AgentType: "generic",
	})
	if critique.Code != http.StatusOK {
		t.Fatalf("critique status = %d", critique.Code)
	}
	cresp := decode[phaseResponse](t, critique)
	if cresp.Created || cresp.Phase != "critique" || cresp.Iteration != 1 {
		t.Errorf("critique response = %+v", cresp)
	}

	revise := env.serve(t, http.MethodPost, "/v1/phase/revise", phaseRequest{
		SessionID: "s1",
		AgentType: "generic",
	})
	if revise.Code != http.StatusOK {
		t.Fatalf("revise status = %d", revise.Code)
	}
	rresp := decode[phaseResponse](t, revise)
	if rresp.Phase != "revise" || rresp.Content == "" {
		t.Errorf("revise response = %+v", rresp)
	}
}

func TestHandlePhase_OrderViolation(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.serve(t, http.MethodPost, "/v1/phase/draft", phaseRequest{
		SessionID: "s1", AgentType: "generic", Query: "q",
	}); rec.Code != http.StatusOK {
		t.Fatalf("draft status = %d", rec.Code)
	}

	rec := env.serve(t, http.MethodPost, "/v1/phase/revise", phaseRequest{
		SessionID: "s1", AgentType: "generic",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("revise before critique status = %d, want 409", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error.Type != "phase_order" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestHandlePhase_CritiqueWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodPost, "/v1/phase/critique", phaseRequest{
		SessionID: "ghost", AgentType: "generic",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error.Type != "session_not_found" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestHandlePhase_UnknownPhase(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodPost, "/v1/phase/polish", phaseRequest{
		SessionID: "s1", AgentType: "generic", Query: "q",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlePhase_ConfigConflictSurfaced(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.serve(t, http.MethodPost, "/v1/phase/draft", phaseRequest{
		SessionID: "s1", AgentType: "generic", Query: "q1",
	}); rec.Code != http.StatusOK {
		t.Fatalf("first draft status = %d", rec.Code)
	}

	rec := env.serve(t, http.MethodPost, "/v1/phase/draft", phaseRequest{
		SessionID: "s1", AgentType: "generic", Query: "q2",
		Config:    &domain.SamplingConfig{MaxIterations: 9},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second draft status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[phaseResponse](t, rec)
	if resp.ConfigConflict == nil {
		t.Error("expected config_conflict in response")
	}
	if resp.Created {
		t.Error("conflicting draft must not create a new session")
	}
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		SessionID: "s1", AgentType: "generic", Query: "q",
	}); rec.Code != http.StatusOK {
		t.Fatalf("loop status = %d", rec.Code)
	}

	get := env.serve(t, http.MethodGet, "/v1/sessions/s1", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get session status = %d", get.Code)
	}
	if !strings.Contains(get.Body.String(), `"agent_type":"generic"`) {
		t.Errorf("session body missing agent info: %s", get.Body.String())
	}

	list := env.serve(t, http.MethodGet, "/v1/sessions", nil)
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), "s1") {
		t.Errorf("list sessions = %d %s", list.Code, list.Body.String())
	}

	transcript := env.serve(t, http.MethodGet, "/v1/sessions/s1/transcript?agent_type=generic", nil)
	if transcript.Code != http.StatusOK {
		t.Fatalf("transcript status = %d", transcript.Code)
	}
	if ct := transcript.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("transcript content type = %q", ct)
	}
	if !strings.Contains(transcript.Body.String(), "# Query 1: q") {
		t.Errorf("transcript body = %q", transcript.Body.String())
	}

	del := env.serve(t, http.MethodDelete, "/v1/sessions/s1", nil)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d", del.Code)
	}

	if rec := env.serve(t, http.MethodGet, "/v1/sessions/s1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
	if rec := env.serve(t, http.MethodDelete, "/v1/sessions/s1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("double delete = %d, want 404", rec.Code)
	}
}

func TestDeleteSession_RemovesPersistedSlots(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.serve(t, http.MethodPost, "/v1/loop", loopRequest{
		SessionID: "s1", AgentType: "generic", Query: "q",
	}); rec.Code != http.StatusOK {
		t.Fatalf("loop status = %d", rec.Code)
	}
	if rec := env.serve(t, http.MethodDelete, "/v1/sessions/s1", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	recs, err := env.store.ListSlots(context.Background(), "s1", "generic")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("persisted slots survived delete: %d", len(recs))
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(t, http.MethodGet, "/healthz", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}
