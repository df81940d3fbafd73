// Package mcptools exposes the refinement engine as MCP tools over the
// official go-sdk. Each phase is a separate tool so MCP clients can drive
// the loop step by step and stream intermediate thinking to users.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/engine"
	"recursive-companion/internal/session"
)

// PhaseParams identify the target companion plus optional overrides that
// only take effect when the call creates the session.
type PhaseParams struct {
	SessionID           string  `json:"session_id,omitempty" mcp:"session identifier; omit on the first call to mint one"`
	AgentType           string  `json:"agent_type,omitempty" mcp:"agent variant: generic, marketing, bug_triage, or strategy (default: generic)"`
	Query               string  `json:"query,omitempty" mcp:"the question to refine; required for draft, ignored by critique and revise"`
	Model               string  `json:"model,omitempty" mcp:"generation model override"`
	Temperature         float32 `json:"temperature,omitempty" mcp:"sampling temperature override"`
	MaxIterations       int     `json:"max_iterations,omitempty" mcp:"critique/revise budget override"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" mcp:"convergence threshold override"`
}

// SessionParams identify an existing session.
type SessionParams struct {
	SessionID string `json:"session_id" mcp:"session identifier"`
	AgentType string `json:"agent_type,omitempty" mcp:"agent variant (default: generic)"`
}

type phaseEnvelope struct {
	SessionID      string            `json:"session_id"`
	Content        string            `json:"content"`
	Phase          domain.Phase      `json:"phase"`
	Iteration      int               `json:"iteration_number"`
	Done           bool              `json:"done"`
	StopReason     domain.StopReason `json:"stop_reason,omitempty"`
	ConfigConflict bool              `json:"config_conflict,omitempty"`
}

// Tools adapts the session registry to MCP tool handlers.
type Tools struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewTools creates the tool set.
func NewTools(registry *session.Registry, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{registry: registry, logger: logger}
}

// Register wires every tool onto the MCP server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "draft",
		Description: "Generates the baseline draft answer for a query, creating the session when needed",
	}, t.Draft)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "critique",
		Description: "Critiques the current best answer; a completion signal in the critique ends the refinement",
	}, t.Critique)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "revise",
		Description: "Revises the answer against the latest critique and checks convergence",
	}, t.Revise)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "refine",
		Description: "Runs the full draft/critique/revise loop to completion and returns the final answer",
	}, t.Refine)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Returns the session's full refinement transcript as markdown",
	}, t.GetTranscript)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "end_session",
		Description: "Evicts the session and discards its refinement state",
	}, t.EndSession)
}

func (t *Tools) Draft(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[PhaseParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	sess, _, warn, err := t.registry.GetOrCreate(args.SessionID, defaultAgentType(args.AgentType), sampling(args))
	if err != nil {
		return errorResult(err), nil
	}
	result, err := sess.Companion.Draft(ctx, args.Query)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(phaseEnvelope{
		SessionID:      sess.ID,
		Content:        result.Content,
		Phase:          result.Phase,
		Iteration:      result.Iteration,
		Done:           result.Done,
		StopReason:     result.StopReason,
		ConfigConflict: warn != nil,
	})
}

func (t *Tools) Critique(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionParams]) (*mcp.CallToolResultFor[any], error) {
	sess, err := t.lookup(params.Arguments)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := sess.Companion.Critique(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(phaseEnvelope{
		SessionID:  sess.ID,
		Content:    result.Content,
		Phase:      result.Phase,
		Iteration:  result.Iteration,
		Done:       result.Done,
		StopReason: result.StopReason,
	})
}

func (t *Tools) Revise(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionParams]) (*mcp.CallToolResultFor[any], error) {
	sess, err := t.lookup(params.Arguments)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := sess.Companion.Revise(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(phaseEnvelope{
		SessionID:  sess.ID,
		Content:    result.Content,
		Phase:      result.Phase,
		Iteration:  result.Iteration,
		Done:       result.Done,
		StopReason: result.StopReason,
	})
}

func (t *Tools) Refine(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[PhaseParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	sess, _, warn, err := t.registry.GetOrCreate(args.SessionID, defaultAgentType(args.AgentType), sampling(args))
	if err != nil {
		return errorResult(err), nil
	}
	result, err := sess.Companion.Loop(ctx, args.Query)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]interface{}{
		"session_id":      sess.ID,
		"content":         result.Answer,
		"stop_reason":     result.StopReason,
		"iterations":      result.Iterations,
		"config_conflict": warn != nil,
	})
}

func (t *Tools) GetTranscript(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionParams]) (*mcp.CallToolResultFor[any], error) {
	sess, err := t.lookup(params.Arguments)
	if err != nil {
		return errorResult(err), nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: sess.Companion.Transcript()},
		},
	}, nil
}

func (t *Tools) EndSession(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionParams]) (*mcp.CallToolResultFor[any], error) {
	n := t.registry.Evict(params.Arguments.SessionID)
	if n == 0 {
		return errorResult(&domain.SessionError{
			Type:      domain.ErrorTypeSessionNotFound,
			SessionID: params.Arguments.SessionID,
		}), nil
	}
	return jsonResult(map[string]interface{}{
		"session_id": params.Arguments.SessionID,
		"evicted":    n,
	})
}

func (t *Tools) lookup(args SessionParams) (*session.Session, error) {
	return t.registry.Lookup(args.SessionID, defaultAgentType(args.AgentType))
}

func defaultAgentType(agentType string) string {
	if agentType == "" {
		return engine.VariantGeneric
	}
	return agentType
}

func sampling(args PhaseParams) domain.SamplingConfig {
	return domain.SamplingConfig{
		Model:               args.Model,
		Temperature:         args.Temperature,
		MaxIterations:       args.MaxIterations,
		SimilarityThreshold: args.SimilarityThreshold,
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResultFor[any], error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

func errorResult(err error) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}
