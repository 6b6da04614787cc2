package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Index, Path and Field locate a rejected mutation.
	Index *int   `json:"index,omitempty"`
	Path  string `json:"path,omitempty"`
	Field string `json:"field,omitempty"`
}

// fail writes err with the status it maps to.
func fail(c *fiber.Ctx, err error) error {
	resp := ErrorResponse{Error: err.Error()}

	var ve *patch.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.Index >= 0 {
			idx := ve.Index
			resp.Index = &idx
		}
		resp.Path = ve.Path
		resp.Field = ve.Field
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	case storage.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(resp)
	case errors.Is(err, engine.ErrUnresolved):
		return c.Status(fiber.StatusConflict).JSON(resp)
	case errors.Is(err, engine.ErrNoStorage):
		return c.Status(fiber.StatusNotImplemented).JSON(resp)
	case errors.Is(err, memory.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
