package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/state"
)

var (
	contextToolName    = "memory_context"
	contextDescription = "Render the current memory state as a compact markdown view: blockers, assumptions, unknowns, facts, plan and actions. Pass a query to rank similar nodes first within each section."

	proposeToolName    = "memory_propose"
	proposeDescription = `Propose a batch of memory mutations. The batch is a JSON array of {"op":"add"|"replace","path":"/raw/<id>"|"/summary/<id>","value":...,"reason":"..."} objects. Either the whole batch applies or none of it does; a rejected batch reports which mutation failed and why.`

	gateToolName    = "memory_gate"
	gateDescription = "Check whether it is safe to act on the memory state for a node kind (fact, unknown, assumption, action, planning). Omit the kind to check every kind."
)

// ContextInput represents the input arguments for memory_context.
type ContextInput struct {
	Query          string `json:"query,omitempty" jsonschema:"optional text used to rank similar nodes first"`
	Budget         int    `json:"budget,omitempty" jsonschema:"maximum characters in the rendered view"`
	IncludeHistory bool   `json:"include_history,omitempty" jsonschema:"append the most recent log entries"`
}

// ContextOutput is the structured output of memory_context.
type ContextOutput struct {
	Context string `json:"context"`
}

// ProposeInput represents the input arguments for memory_propose.
type ProposeInput struct {
	Batch string `json:"batch" jsonschema:"the mutation batch as a JSON array"`
}

// ProposeOutput is the structured output of memory_propose.
type ProposeOutput struct {
	Applied    int             `json:"applied"`
	Touched    []string        `json:"touched"`
	Unknowns   []string        `json:"unknowns"`
	CanExecute map[string]bool `json:"canExecute"`
}

// GateInput represents the input arguments for memory_gate.
type GateInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"the node kind to check"`
}

// GateOutput is the structured output of memory_gate.
type GateOutput struct {
	CanExecute map[string]bool `json:"canExecute"`
}

func (s *Server) handleContext(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (*mcp.CallToolResult, ContextOutput, error) {
	opts := s.config.Context
	if input.Query != "" {
		opts.Query = input.Query
	}
	if input.Budget > 0 {
		opts.Budget = input.Budget
	}
	if input.IncludeHistory {
		opts.IncludeHistory = true
	}

	out, err := s.config.Session.Context(ctx, opts)
	if err != nil {
		s.config.Logger.Error("failed to build context", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to build context: %v", err)), ContextOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out},
		},
	}, ContextOutput{Context: out}, nil
}

func (s *Server) handlePropose(ctx context.Context, _ *mcp.CallToolRequest, input ProposeInput) (*mcp.CallToolResult, ProposeOutput, error) {
	batch, err := patch.ParseBatch([]byte(input.Batch))
	if err != nil {
		return toolError(fmt.Sprintf("Rejected batch: %v", err)), ProposeOutput{}, nil
	}

	next, err := s.config.Session.Apply(ctx, batch)
	if err != nil {
		s.config.Logger.Debug("model batch rejected", zap.Error(err))
		return toolError(fmt.Sprintf("Rejected batch: %v", err)), ProposeOutput{}, nil
	}

	output := ProposeOutput{
		Applied:    len(batch),
		Touched:    memory.TouchedIDs(next.History[len(next.History)-len(batch):]),
		Unknowns:   next.Unknowns,
		CanExecute: s.gate(""),
	}
	if output.Touched == nil {
		output.Touched = []string{}
	}

	return jsonResult(output)
}

func (s *Server) handleGate(_ context.Context, _ *mcp.CallToolRequest, input GateInput) (*mcp.CallToolResult, GateOutput, error) {
	if input.Kind != "" && !state.Kind(input.Kind).Valid() {
		return toolError(fmt.Sprintf("unknown kind: %q", input.Kind)), GateOutput{}, nil
	}

	return jsonResult(GateOutput{CanExecute: s.gate(state.Kind(input.Kind))})
}

// gate checks kind, or every kind when kind is empty.
func (s *Server) gate(kind state.Kind) map[string]bool {
	kinds := state.Kinds
	if kind != "" {
		kinds = []state.Kind{kind}
	}

	out := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		out[string(k)] = s.config.Session.CanExecute(k)
	}
	return out
}

// jsonResult mirrors structured output as JSON text for clients that only
// read text content.
func jsonResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
