package server

import (
	"errors"
	"strconv"

	"foodshare/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid listing ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parsePage extracts page and limit query parameters, rejecting malformed
// ranges with a 400 rather than clamping.
func (s *Server) parsePage(c *fiber.Ctx) (page, pageSize int, err error) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Page must be at least 1"))
		return 0, 0, errResponseWritten
	}
	pageSize = c.QueryInt("limit", 20)
	if pageSize < 1 || pageSize > 100 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Limit must be between 1 and 100"))
		return 0, 0, errResponseWritten
	}
	return page, pageSize, nil
}

// parseFloatQuery parses an optional float query parameter. A present but
// unparseable value writes a 400 and returns errResponseWritten.
func (s *Server) parseFloatQuery(c *fiber.Ctx, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+name))
		return nil, errResponseWritten
	}
	return &v, nil
}

// respondError maps service errors onto the error taxonomy.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}
