package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"foodshare/internal/cache"
	"foodshare/internal/expiry"
	"foodshare/internal/geo"
	"foodshare/internal/models"
	"foodshare/internal/observability"
	"foodshare/internal/repository"

	"gorm.io/gorm"
)

const (
	DefaultRadiusKm = 10.0
	MinRadiusKm     = 0.1
	MaxRadiusKm     = 100.0

	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ListingService struct {
	repo repository.ListingRepository
	now  func() time.Time
}

type CreateListingInput struct {
	DonorID            uint
	DonorName          string
	DonorVerified      bool
	Title              string
	Description        string
	Category           string
	Quantity           string
	Allergens          []string
	PickupInstructions string
	Latitude           float64
	Longitude          float64
	Address            string
	ExpiryTime         string
	Images             []models.Image
}

type UpdateListingInput struct {
	UserID             uint
	ListingID          uint
	Title              string
	Description        string
	Category           string
	Quantity           string
	Allergens          []string
	PickupInstructions string
	ExpiryTime         string
	Images             []models.Image
}

type SearchInput struct {
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Category  string
	Search    string
	Page      int
	PageSize  int
}

type ClaimInput struct {
	UserID    uint
	ListingID uint
	Message   string
}

func NewListingService(repo repository.ListingRepository) *ListingService {
	return &ListingService{repo: repo, now: time.Now}
}

func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput) (*models.Listing, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) < 3 || len(title) > 200 {
		return nil, models.NewValidationError("Title must be between 3 and 200 characters")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) < 3 || len(description) > 1000 {
		return nil, models.NewValidationError("Description must be between 3 and 1000 characters")
	}
	if strings.TrimSpace(in.Quantity) == "" {
		return nil, models.NewValidationError("Quantity is required")
	}
	if len(in.Quantity) > 100 {
		return nil, models.NewValidationError("Quantity too long (max 100 characters)")
	}
	if !models.ValidCategory(in.Category) {
		return nil, models.NewValidationError("Invalid category")
	}
	if !models.ValidAllergens(in.Allergens) {
		return nil, models.NewValidationError("Unknown allergen")
	}
	if len(in.PickupInstructions) > 500 {
		return nil, models.NewValidationError("Pickup instructions too long (max 500 characters)")
	}
	address := strings.TrimSpace(in.Address)
	if len(address) < 2 || len(address) > 300 {
		return nil, models.NewValidationError("Address must be between 2 and 300 characters")
	}
	point := geo.Point{Latitude: in.Latitude, Longitude: in.Longitude}
	if !point.Valid() {
		return nil, models.NewValidationError("Coordinates out of range")
	}
	expiryTime, err := time.Parse(time.RFC3339, in.ExpiryTime)
	if err != nil {
		return nil, models.NewValidationError("Expiry time must be a valid ISO-8601 timestamp")
	}
	if !expiryTime.After(s.now()) {
		return nil, models.NewValidationError("Expiry time must be in the future")
	}

	listing := &models.Listing{
		DonorID:            in.DonorID,
		DonorName:          in.DonorName,
		Verified:           in.DonorVerified,
		Title:              title,
		Description:        description,
		Category:           in.Category,
		Quantity:           in.Quantity,
		Allergens:          in.Allergens,
		PickupInstructions: in.PickupInstructions,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Address:            address,
		ExpiryTime:         expiryTime.UTC(),
		Status:             models.StatusAvailable,
		Images:             in.Images,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, models.NewInternalError(err)
	}

	cache.BumpListingsVersion(ctx)
	observability.ListingsCreatedTotal.WithLabelValues(listing.Category).Inc()
	expiry.Enrich(listing, s.now())
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Listing", id)
		}
		return nil, models.NewInternalError(err)
	}

	// View counting is best-effort; a failed bump never blocks the read.
	_ = s.repo.IncrementViews(ctx, id)
	listing.Views++

	expiry.Enrich(listing, s.now())
	return listing, nil
}

func (s *ListingService) UpdateListing(ctx context.Context, in UpdateListingInput) (*models.Listing, error) {
	listing, err := s.repo.GetByID(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Listing", in.ListingID)
		}
		return nil, models.NewInternalError(err)
	}
	if listing.DonorID != in.UserID {
		return nil, models.NewForbiddenError("Only the donor can update this listing")
	}
	now := s.now()
	if !listing.Editable() || !listing.ExpiryTime.After(now) {
		return nil, models.NewInvalidStateError("Listing can no longer be edited")
	}

	if in.Title != "" {
		title := strings.TrimSpace(in.Title)
		if len(title) < 3 || len(title) > 200 {
			return nil, models.NewValidationError("Title must be between 3 and 200 characters")
		}
		listing.Title = title
	}
	if in.Description != "" {
		description := strings.TrimSpace(in.Description)
		if len(description) < 3 || len(description) > 1000 {
			return nil, models.NewValidationError("Description must be between 3 and 1000 characters")
		}
		listing.Description = description
	}
	if in.Category != "" {
		if !models.ValidCategory(in.Category) {
			return nil, models.NewValidationError("Invalid category")
		}
		listing.Category = in.Category
	}
	if in.Quantity != "" {
		if len(in.Quantity) > 100 {
			return nil, models.NewValidationError("Quantity too long (max 100 characters)")
		}
		listing.Quantity = in.Quantity
	}
	if in.Allergens != nil {
		if !models.ValidAllergens(in.Allergens) {
			return nil, models.NewValidationError("Unknown allergen")
		}
		listing.Allergens = in.Allergens
	}
	if in.PickupInstructions != "" {
		if len(in.PickupInstructions) > 500 {
			return nil, models.NewValidationError("Pickup instructions too long (max 500 characters)")
		}
		listing.PickupInstructions = in.PickupInstructions
	}
	if in.ExpiryTime != "" {
		expiryTime, err := time.Parse(time.RFC3339, in.ExpiryTime)
		if err != nil {
			return nil, models.NewValidationError("Expiry time must be a valid ISO-8601 timestamp")
		}
		if !expiryTime.After(now) {
			return nil, models.NewValidationError("Expiry time must be in the future")
		}
		listing.ExpiryTime = expiryTime.UTC()
	}
	if in.Images != nil {
		listing.Images = in.Images
	}

	if err := s.repo.Update(ctx, listing); err != nil {
		return nil, models.NewInternalError(err)
	}

	cache.BumpListingsVersion(ctx)
	expiry.Enrich(listing, now)
	return listing, nil
}

func (s *ListingService) DeleteListing(ctx context.Context, userID, listingID uint) error {
	listing, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Listing", listingID)
		}
		return models.NewInternalError(err)
	}
	if listing.DonorID != userID {
		return models.NewForbiddenError("Only the donor can delete this listing")
	}
	if err := s.repo.Delete(ctx, listingID); err != nil {
		return models.NewInternalError(err)
	}
	cache.BumpListingsVersion(ctx)
	return nil
}

// Search runs either a proximity query (center given, ordered by distance
// then expiry) or a browse query (newest first). Browse pages are served
// from a short-lived Redis cache keyed by a version counter that write
// paths bump.
func (s *ListingService) Search(ctx context.Context, in SearchInput) ([]*models.Listing, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	pageSize := in.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return nil, models.NewValidationError("Page size must be between 1 and 100")
	}
	if in.Category != "" && !models.ValidCategory(in.Category) {
		return nil, models.NewValidationError("Invalid category")
	}
	offset := (page - 1) * pageSize
	now := s.now()

	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, models.NewValidationError("Latitude and longitude must be provided together")
	}
	// Range-checked even without a center; a malformed radius is a caller
	// error regardless of which query mode runs.
	radiusKm := in.RadiusKm
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	if radiusKm < MinRadiusKm || radiusKm > MaxRadiusKm {
		return nil, models.NewValidationError("Radius must be between 0.1 and 100 km")
	}

	if in.Latitude != nil {
		center := geo.Point{Latitude: *in.Latitude, Longitude: *in.Longitude}
		if !center.Valid() {
			return nil, models.NewValidationError("Coordinates out of range")
		}

		listings, err := s.repo.FindNearby(ctx, repository.NearbyQuery{
			Center:       center,
			RadiusMeters: radiusKm * 1000,
			Category:     in.Category,
			Search:       in.Search,
			Limit:        pageSize,
			Offset:       offset,
		}, now)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, l := range listings {
			expiry.Enrich(l, now)
		}
		observability.SearchesTotal.WithLabelValues("proximity").Inc()
		return listings, nil
	}

	key := cache.BrowseKey(cache.ListingsVersion(ctx), page, pageSize, in.Category, in.Search)
	var cached []*models.Listing
	if hit, err := cache.GetJSON(ctx, key, &cached); err == nil && hit {
		// A listing can expire inside the cache TTL; re-derive and drop
		// anything that is no longer claimable.
		live := cached[:0]
		for _, l := range cached {
			expiry.Enrich(l, now)
			if l.IsAvailable {
				live = append(live, l)
			}
		}
		observability.SearchesTotal.WithLabelValues("browse").Inc()
		return live, nil
	}

	listings, err := s.repo.Browse(ctx, repository.BrowseFilters{
		Category: in.Category,
		Search:   in.Search,
		Limit:    pageSize,
		Offset:   offset,
	}, now)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	cache.SetJSON(ctx, key, listings, cache.BrowseTTL)
	for _, l := range listings {
		expiry.Enrich(l, now)
	}
	observability.SearchesTotal.WithLabelValues("browse").Inc()
	return listings, nil
}

// Claim records a recipient's interest in a listing. The precondition
// checks here give callers precise failures, but the store re-evaluates
// the whole guard atomically, so two concurrent claimants can never both
// ride a stale read.
func (s *ListingService) Claim(ctx context.Context, in ClaimInput) error {
	if len(in.Message) > 200 {
		return models.NewValidationError("Message too long (max 200 characters)")
	}

	listing, err := s.repo.GetByID(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.ClaimsTotal.WithLabelValues("not_found").Inc()
			return models.NewNotFoundError("Listing", in.ListingID)
		}
		return models.NewInternalError(err)
	}
	now := s.now()
	if appErr := s.classifyClaimFailure(listing, in.UserID, now); appErr != nil {
		return appErr
	}

	applied, err := s.repo.AppendClaim(ctx, in.ListingID, &models.Claim{
		ListingID: in.ListingID,
		UserID:    in.UserID,
		Message:   in.Message,
		Status:    models.ClaimStatusPending,
		ClaimedAt: now,
	})
	if err != nil {
		observability.ClaimsTotal.WithLabelValues("error").Inc()
		return models.NewInternalError(err)
	}
	if !applied {
		// Lost a race after the optimistic checks. Re-read to report the
		// precise reason; the rejection itself already happened in the store.
		return s.classifyGuardRejection(ctx, in.ListingID, in.UserID)
	}

	observability.ClaimsTotal.WithLabelValues("accepted").Inc()
	cache.BumpListingsVersion(ctx)
	return nil
}

func (s *ListingService) classifyClaimFailure(listing *models.Listing, userID uint, now time.Time) *models.AppError {
	if !expiry.IsAvailable(listing, now) {
		observability.ClaimsTotal.WithLabelValues("invalid_state").Inc()
		return models.NewInvalidStateError("Listing is no longer available")
	}
	if listing.DonorID == userID {
		observability.ClaimsTotal.WithLabelValues("invalid_state").Inc()
		return models.NewInvalidStateError("Cannot claim your own listing")
	}
	if listing.HasClaimBy(userID) {
		observability.ClaimsTotal.WithLabelValues("conflict").Inc()
		return models.NewConflictError("You have already claimed this listing")
	}
	return nil
}

func (s *ListingService) classifyGuardRejection(ctx context.Context, listingID, userID uint) error {
	listing, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.ClaimsTotal.WithLabelValues("not_found").Inc()
			return models.NewNotFoundError("Listing", listingID)
		}
		return models.NewInternalError(err)
	}
	if appErr := s.classifyClaimFailure(listing, userID, s.now()); appErr != nil {
		return appErr
	}
	// Guard said no but the snapshot looks claimable; treat as a transient
	// conflict rather than inventing a state.
	observability.ClaimsTotal.WithLabelValues("conflict").Inc()
	return models.NewConflictError("Claim could not be recorded, please retry")
}

// ListMine returns the donor's own listings regardless of status, newest
// first.
func (s *ListingService) ListMine(ctx context.Context, donorID uint, page, pageSize int) ([]*models.Listing, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return nil, models.NewValidationError("Page size must be between 1 and 100")
	}
	listings, err := s.repo.ListByDonor(ctx, donorID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	now := s.now()
	for _, l := range listings {
		expiry.Enrich(l, now)
	}
	return listings, nil
}
