package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/engine"
	"recursive-companion/internal/session"
	"recursive-companion/internal/storage"
	"recursive-companion/internal/telemetry"
)

// Handler serves the refinement API backed by the session registry and an
// optional slot store.
type Handler struct {
	registry *session.Registry
	store    storage.SlotStore
	logger   *slog.Logger
}

// NewHandler creates the API handler. store may be nil.
func NewHandler(registry *session.Registry, store storage.SlotStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, store: store, logger: logger}
}

// Routes mounts all API routes on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/loop", h.handleLoop)
	r.Post("/v1/phase/{phase}", h.handlePhase)
	r.Get("/v1/sessions", h.handleListSessions)
	r.Get("/v1/sessions/{id}", h.handleGetSession)
	r.Get("/v1/sessions/{id}/transcript", h.handleTranscript)
	r.Delete("/v1/sessions/{id}", h.handleDeleteSession)
	r.Get("/healthz", h.handleHealth)
}

type loopRequest struct {
	SessionID string                 `json:"session_id,omitempty"`
	AgentType string                 `json:"agent_type"`
	Query     string                 `json:"query"`
	Config    *domain.SamplingConfig `json:"config,omitempty"`
}

type loopResponse struct {
	SessionID      string                  `json:"session_id"`
	Content        string                  `json:"content"`
	StopReason     domain.StopReason       `json:"stop_reason"`
	Iterations     int                     `json:"iterations"`
	Slots          []*domain.IterationSlot `json:"slots,omitempty"`
	ConfigConflict *domain.ConfigConflict  `json:"config_conflict,omitempty"`
}

func (h *Handler) handleLoop(w http.ResponseWriter, r *http.Request) {
	var req loopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, _, warn, err := h.getOrCreate(req.SessionID, req.AgentType, req.Config)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	AddLogField(r.Context(), "session_id", sess.ID)
	AddLogField(r.Context(), "agent_type", sess.AgentType)

	ctx, span := telemetry.StartPhaseSpan(r.Context(), "loop", sess.ID, sess.AgentType)
	result, err := sess.Companion.Loop(ctx, req.Query)
	span.End()
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	AddLogField(r.Context(), "stop_reason", string(result.StopReason))

	h.persistLastSlot(r.Context(), sess, result.StopReason)

	writeJSON(w, http.StatusOK, loopResponse{
		SessionID:      sess.ID,
		Content:        result.Answer,
		StopReason:     result.StopReason,
		Iterations:     result.Iterations,
		Slots:          result.Slots,
		ConfigConflict: warn,
	})
}

type phaseRequest struct {
	SessionID string                 `json:"session_id,omitempty"`
	AgentType string                 `json:"agent_type"`
	Query     string                 `json:"query,omitempty"`
	Config    *domain.SamplingConfig `json:"config,omitempty"`
}

type phaseResponse struct {
	SessionID      string                 `json:"session_id"`
	Content        string                 `json:"content"`
	Phase          domain.Phase           `json:"phase"`
	Iteration      int                    `json:"iteration_number"`
	Done           bool                   `json:"done"`
	StopReason     domain.StopReason      `json:"stop_reason,omitempty"`
	Created        bool                   `json:"created"`
	ConfigConflict *domain.ConfigConflict `json:"config_conflict,omitempty"`
}

func (h *Handler) handlePhase(w http.ResponseWriter, r *http.Request) {
	phase := domain.Phase(chi.URLParam(r, "phase"))
	switch phase {
	case domain.PhaseDraft, domain.PhaseCritique, domain.PhaseRevise:
	default:
		writeErrorMessage(w, http.StatusNotFound, "unknown phase")
		return
	}

	var req phaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		sess    *session.Session
		created bool
		warn    *domain.ConfigConflict
		err     error
	)
	if phase == domain.PhaseDraft {
		sess, created, warn, err = h.getOrCreate(req.SessionID, req.AgentType, req.Config)
	} else {
		// Critique and revise never create: they only advance an
		// existing slot.
		sess, err = h.registry.Lookup(req.SessionID, req.AgentType)
	}
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	AddLogField(r.Context(), "session_id", sess.ID)
	AddLogField(r.Context(), "agent_type", sess.AgentType)
	AddLogField(r.Context(), "phase", string(phase))

	ctx, span := telemetry.StartPhaseSpan(r.Context(), string(phase), sess.ID, sess.AgentType)
	var result domain.PhaseResult
	switch phase {
	case domain.PhaseDraft:
		result, err = sess.Companion.Draft(ctx, req.Query)
	case domain.PhaseCritique:
		result, err = sess.Companion.Critique(ctx)
	case domain.PhaseRevise:
		result, err = sess.Companion.Revise(ctx)
	}
	span.End()
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	if result.Done {
		AddLogField(r.Context(), "stop_reason", string(result.StopReason))
		h.persistLastSlot(r.Context(), sess, result.StopReason)
	}

	writeJSON(w, http.StatusOK, phaseResponse{
		SessionID:      sess.ID,
		Content:        result.Content,
		Phase:          result.Phase,
		Iteration:      result.Iteration,
		Done:           result.Done,
		StopReason:     result.StopReason,
		Created:        created,
		ConfigConflict: warn,
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.registry.List(),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var infos []session.Info
	for _, info := range h.registry.List() {
		if info.ID == id {
			infos = append(infos, info)
		}
	}
	if len(infos) == 0 {
		h.writeError(r.Context(), w, &domain.SessionError{
			Type:      domain.ErrorTypeSessionNotFound,
			SessionID: id,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"agents":     infos,
	})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agentType := r.URL.Query().Get("agent_type")
	if agentType == "" {
		agentType = engine.VariantGeneric
	}

	sess, err := h.registry.Lookup(id, agentType)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sess.Companion.Transcript()))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n := h.registry.Evict(id)
	if n == 0 {
		h.writeError(r.Context(), w, &domain.SessionError{
			Type:      domain.ErrorTypeSessionNotFound,
			SessionID: id,
		})
		return
	}
	if h.store != nil {
		if _, err := h.store.DeleteSession(r.Context(), id); err != nil {
			h.logger.Warn("failed to delete persisted slots",
				"session_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"evicted":    n,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getOrCreate(sessionID, agentType string, cfg *domain.SamplingConfig) (*session.Session, bool, *domain.ConfigConflict, error) {
	var sampling domain.SamplingConfig
	if cfg != nil {
		sampling = *cfg
	}
	return h.registry.GetOrCreate(sessionID, agentType, sampling)
}

// persistLastSlot records the companion's most recent slot when a store is
// configured. Persistence failures are logged, never surfaced to callers.
func (h *Handler) persistLastSlot(ctx context.Context, sess *session.Session, stop domain.StopReason) {
	if h.store == nil {
		return
	}
	slots := sess.Companion.Slots()
	if len(slots) == 0 {
		return
	}
	index := len(slots) - 1
	rec := storage.RecordFromSlot(sess.ID, sess.AgentType, index, slots[index], stop)
	if err := h.store.SaveSlot(ctx, rec); err != nil {
		h.logger.Warn("failed to persist slot",
			"session_id", sess.ID, "slot_index", index, "error", err)
	}
}

type errorResponse struct {
	Error struct {
		Type    domain.ErrorType `json:"type,omitempty"`
		Message string           `json:"message"`
	} `json:"error"`
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	AddError(ctx, err)

	status := http.StatusInternalServerError
	switch domain.TypeOf(err) {
	case domain.ErrorTypePhaseOrder:
		status = http.StatusConflict
	case domain.ErrorTypeSessionNotFound:
		status = http.StatusNotFound
	case domain.ErrorTypeSessionExpired:
		status = http.StatusGone
	case domain.ErrorTypeGeneration:
		status = http.StatusBadGateway
	case "":
		status = http.StatusBadRequest
	}

	var resp errorResponse
	resp.Error.Type = domain.TypeOf(err)
	resp.Error.Message = err.Error()
	writeJSON(w, status, resp)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	var resp errorResponse
	resp.Error.Message = msg
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
