package api

import (
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/remote"
)

// requireStorageToken guards /storage when a token is configured.
func (s *Server) requireStorageToken(c *fiber.Ctx) error {
	if s.config.StorageToken == "" {
		return c.Next()
	}

	got, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.config.StorageToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid storage token"})
	}
	return c.Next()
}

func (s *Server) handleStorageSave(c *fiber.Ctx) error {
	var req remote.SaveRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid checkpoint body: "+err.Error())
	}
	if req.State == nil {
		req.State = state.New()
	}

	cp, err := s.storer.SaveCheckpoint(c.UserContext(), req.State, req.Label)
	if err != nil {
		s.logger.Error("failed to save checkpoint", zap.Error(err))
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cp)
}

func (s *Server) handleStorageList(c *fiber.Ctx) error {
	cps, err := s.storer.ListCheckpoints(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	if cps == nil {
		cps = []storage.Checkpoint{}
	}
	return c.JSON(cps)
}

func (s *Server) handleStorageLoad(c *fiber.Ctx) error {
	snap, err := s.storer.LoadCheckpoint(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleStorageAppend(c *fiber.Ctx) error {
	var entries []state.Entry
	if err := json.Unmarshal(c.Body(), &entries); err != nil {
		return badRequest(c, "invalid log entries: "+err.Error())
	}

	if err := s.storer.AppendToLog(c.UserContext(), entries); err != nil {
		s.logger.Error("failed to append to log", zap.Error(err))
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStorageRead(c *fiber.Ctx) error {
	entries, err := s.storer.ReadLog(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	if entries == nil {
		entries = []state.Entry{}
	}
	return c.JSON(entries)
}
