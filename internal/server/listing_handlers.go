package server

import (
	"foodshare/internal/middleware"
	"foodshare/internal/models"
	"foodshare/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetListings handles GET /api/listings.
// With lat/lng it returns available listings within the radius ordered by
// distance; without them it returns the newest available listings.
func (s *Server) GetListings(c *fiber.Ctx) error {
	ctx := c.Context()

	page, pageSize, err := s.parsePage(c)
	if err != nil {
		return nil
	}
	lat, err := s.parseFloatQuery(c, "lat")
	if err != nil {
		return nil
	}
	lng, err := s.parseFloatQuery(c, "lng")
	if err != nil {
		return nil
	}
	radius, err := s.parseFloatQuery(c, "radius")
	if err != nil {
		return nil
	}

	in := service.SearchInput{
		Latitude:  lat,
		Longitude: lng,
		Category:  c.Query("category"),
		Search:    c.Query("search"),
		Page:      page,
		PageSize:  pageSize,
	}
	if radius != nil {
		in.RadiusKm = *radius
	}

	listings, svcErr := s.listingService.Search(ctx, in)
	if svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(listings),
		"data":    listings,
	})
}

// GetListing handles GET /api/listings/:id
func (s *Server) GetListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	listing, svcErr := s.listingService.GetListing(c.Context(), id)
	if svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    listing,
	})
}

type listingRequest struct {
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Category           string         `json:"category"`
	Quantity           string         `json:"quantity"`
	Allergens          []string       `json:"allergens"`
	PickupInstructions string         `json:"pickup_instructions"`
	Latitude           float64        `json:"latitude"`
	Longitude          float64        `json:"longitude"`
	Address            string         `json:"address"`
	ExpiryTime         string         `json:"expiry_time"`
	DonorName          string         `json:"donor_name"`
	Verified           bool           `json:"verified"`
	Images             []models.Image `json:"images"`
}

// CreateListing handles POST /api/listings
func (s *Server) CreateListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	if c.Locals("userType") != middleware.UserTypeDonor {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Only donors can create listings"))
	}

	var req listingRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	listing, err := s.listingService.CreateListing(c.Context(), service.CreateListingInput{
		DonorID:            userID,
		DonorName:          req.DonorName,
		DonorVerified:      req.Verified,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		Quantity:           req.Quantity,
		Allergens:          req.Allergens,
		PickupInstructions: req.PickupInstructions,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		Address:            req.Address,
		ExpiryTime:         req.ExpiryTime,
		Images:             req.Images,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    listing,
	})
}

// UpdateListing handles PUT /api/listings/:id
func (s *Server) UpdateListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req listingRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	listing, svcErr := s.listingService.UpdateListing(c.Context(), service.UpdateListingInput{
		UserID:             userID,
		ListingID:          id,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		Quantity:           req.Quantity,
		Allergens:          req.Allergens,
		PickupInstructions: req.PickupInstructions,
		ExpiryTime:         req.ExpiryTime,
		Images:             req.Images,
	})
	if svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    listing,
	})
}

// DeleteListing handles DELETE /api/listings/:id
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if svcErr := s.listingService.DeleteListing(c.Context(), userID, id); svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Listing deleted",
	})
}

// ClaimListing handles POST /api/listings/:id/claim
func (s *Server) ClaimListing(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Message string `json:"message"`
	}
	// Claims with no body are valid; the message is optional.
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	if svcErr := s.listingService.Claim(c.Context(), service.ClaimInput{
		UserID:    userID,
		ListingID: id,
		Message:   req.Message,
	}); svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Claim submitted successfully",
	})
}

// GetMyListings handles GET /api/listings/mine
func (s *Server) GetMyListings(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page, pageSize, err := s.parsePage(c)
	if err != nil {
		return nil
	}

	listings, svcErr := s.listingService.ListMine(c.Context(), userID, page, pageSize)
	if svcErr != nil {
		return respondError(c, svcErr)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(listings),
		"data":    listings,
	})
}
