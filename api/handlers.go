package api

import (
	"slices"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/state"
)

// PatchResponse summarizes an applied batch.
type PatchResponse struct {
	Applied       int                 `json:"applied"`
	HistoryLength int                 `json:"historyLength"`
	Touched       []string            `json:"touched"`
	Unknowns      []string            `json:"unknowns"`
	Assumptions   []string            `json:"assumptions"`
	CanExecute    map[state.Kind]bool `json:"canExecute"`
}

// GateResponse is the answer to a single gate check.
type GateResponse struct {
	Kind       state.Kind `json:"kind"`
	CanExecute bool       `json:"canExecute"`
}

// CheckpointRequest is the body of POST /checkpoints.
type CheckpointRequest struct {
	Label string `json:"label,omitempty"`
}

// CheckpointResponse is returned by POST /checkpoints.
type CheckpointResponse struct {
	ID string `json:"id"`
}

// HealRequest is the optional body of POST /heal.
type HealRequest struct {
	FromCheckpoint string `json:"fromCheckpoint,omitempty"`
}

// RollbackPlanResponse lists the mutations POST /rollback/:id would apply.
type RollbackPlanResponse struct {
	ID        string           `json:"id"`
	Mutations []state.Mutation `json:"mutations"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleGetState(c *fiber.Ctx) error {
	return c.JSON(s.session.State())
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	id := c.Params("id")
	n, ok := s.session.Node(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found: " + id})
	}
	return c.JSON(n)
}

// handleApplyPatches applies a wire batch. A rejected batch leaves the
// session untouched and reports the offending mutation.
func (s *Server) handleApplyPatches(c *fiber.Ctx) error {
	batch, err := patch.ParseBatch(c.Body())
	if err != nil {
		return fail(c, err)
	}

	next, err := s.session.Apply(c.UserContext(), batch)
	if err != nil {
		s.logger.Debug("rejected patch batch", zap.Int("mutations", len(batch)), zap.Error(err))
		return fail(c, err)
	}

	tail := next.History[len(next.History)-len(batch):]
	return c.JSON(PatchResponse{
		Applied:       len(batch),
		HistoryLength: len(next.History),
		Touched:       memory.TouchedIDs(tail),
		Unknowns:      next.Unknowns,
		Assumptions:   next.Assumptions,
		CanExecute:    s.gate(),
	})
}

func (s *Server) handleGateAll(c *fiber.Ctx) error {
	return c.JSON(s.gate())
}

func (s *Server) handleGate(c *fiber.Ctx) error {
	kind := state.Kind(c.Params("kind"))
	if !kind.Valid() {
		return badRequest(c, "unknown kind: "+string(kind))
	}
	return c.JSON(GateResponse{Kind: kind, CanExecute: s.session.CanExecute(kind)})
}

// handleContext renders the context view as markdown. Query parameters:
// budget, history, depth, q (similarity query) and topk.
func (s *Server) handleContext(c *fiber.Ctx) error {
	opts := s.config.Context
	opts.Budget = c.QueryInt("budget", opts.Budget)
	opts.IncludeHistory = c.QueryBool("history", opts.IncludeHistory)
	opts.HistoryDepth = c.QueryInt("depth", opts.HistoryDepth)
	opts.Query = c.Query("q", opts.Query)
	opts.TopK = c.QueryInt("topk", opts.TopK)

	if opts.Budget < 0 || opts.HistoryDepth < 0 || opts.TopK < 0 {
		return badRequest(c, "budget, depth and topk must not be negative")
	}

	out, err := s.session.Context(c.UserContext(), opts)
	if err != nil {
		return fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(out)
}

func (s *Server) handleListCheckpoints(c *fiber.Ctx) error {
	refs := s.session.Checkpoints()
	if refs == nil {
		refs = []state.CheckpointRef{}
	}
	return c.JSON(refs)
}

func (s *Server) handleCreateCheckpoint(c *fiber.Ctx) error {
	var req CheckpointRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid checkpoint request: "+err.Error())
		}
	}

	id, err := s.session.Checkpoint(c.UserContext(), req.Label)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CheckpointResponse{ID: id})
}

func (s *Server) handleRestoreCheckpoint(c *fiber.Ctx) error {
	st, err := s.session.Restore(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleHeal(c *fiber.Ctx) error {
	var req HealRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid heal request: "+err.Error())
		}
	}

	st, err := s.session.Heal(c.UserContext(), req.FromCheckpoint)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleRollbackPlan(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.session.Node(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found: " + id})
	}

	plan, err := s.session.RollbackPlan(id)
	if err != nil {
		return fail(c, err)
	}
	if plan == nil {
		plan = []state.Mutation{}
	}
	return c.JSON(RollbackPlanResponse{ID: id, Mutations: plan})
}

func (s *Server) handleRollback(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.session.Node(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found: " + id})
	}

	st, err := s.session.Rollback(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(st)
}

// handleLog returns the persisted log when a store is configured, otherwise
// the session's in-memory history. ?since=N keeps entries with Seq > N.
func (s *Server) handleLog(c *fiber.Ctx) error {
	var (
		entries []state.Entry
		err     error
	)
	if s.storer != nil {
		entries, err = s.storer.ReadLog(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
	} else {
		entries = s.session.State().History
	}

	if since := c.QueryInt("since", 0); since > 0 {
		entries = slices.DeleteFunc(entries, func(e state.Entry) bool { return e.Seq <= since })
	}
	if entries == nil {
		entries = []state.Entry{}
	}
	return c.JSON(entries)
}

func (s *Server) gate() map[state.Kind]bool {
	out := make(map[state.Kind]bool, len(state.Kinds))
	for _, k := range state.Kinds {
		out[k] = s.session.CanExecute(k)
	}
	return out
}
