// Package repository implements data access for listings and claims.
package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"foodshare/internal/geo"
	"foodshare/internal/models"

	"gorm.io/gorm"
)

// BrowseFilters narrow a non-proximity listing query. Only available,
// unexpired listings are returned; ordering is newest first.
type BrowseFilters struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

// NearbyQuery describes a proximity search. Results are ordered by ascending
// distance from Center, with ascending expiry time breaking ties.
type NearbyQuery struct {
	Center       geo.Point
	RadiusMeters float64
	Category     string
	Search       string
	Limit        int
	Offset       int
}

// ListingRepository defines the interface for listing data operations
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
	IncrementViews(ctx context.Context, id uint) error
	Update(ctx context.Context, listing *models.Listing) error
	Delete(ctx context.Context, id uint) error
	Browse(ctx context.Context, f BrowseFilters, now time.Time) ([]*models.Listing, error)
	FindNearby(ctx context.Context, q NearbyQuery, now time.Time) ([]*models.Listing, error)
	ListByDonor(ctx context.Context, donorID uint, limit, offset int) ([]*models.Listing, error)
	AppendClaim(ctx context.Context, listingID uint, claim *models.Claim) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// listingRepository implements ListingRepository
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).
		Preload("Claims", func(db *gorm.DB) *gorm.DB {
			return db.Order("claimed_at ASC")
		}).
		First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepository) IncrementViews(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1")).Error
}

func (r *listingRepository) Update(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Save(listing).Error
}

func (r *listingRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).Delete(&models.Claim{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Listing{}, id).Error
	})
}

// availableScope restricts a query to listings claimable at the given instant.
func availableScope(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("status = ? AND expiry_time > ?", models.StatusAvailable, now)
}

// textSearchScope applies the case-insensitive free-text match across title,
// description, and donor name.
func textSearchScope(db *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return db
	}
	pattern := "%" + strings.ToLower(search) + "%"
	return db.Where(
		"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(donor_name) LIKE ?",
		pattern, pattern, pattern,
	)
}

func (r *listingRepository) Browse(ctx context.Context, f BrowseFilters, now time.Time) ([]*models.Listing, error) {
	var listings []*models.Listing

	query := availableScope(r.db.WithContext(ctx), now)
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	query = textSearchScope(query, f.Search)

	err := query.
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&listings).Error
	return listings, err
}

func (r *listingRepository) FindNearby(ctx context.Context, q NearbyQuery, now time.Time) ([]*models.Listing, error) {
	box := geo.Bounds(q.Center, q.RadiusMeters)

	// Bounding-box prefilter keeps the candidate scan cheap; the box can
	// include corners beyond the radius, so exact distance re-checks below.
	query := availableScope(r.db.WithContext(ctx), now).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng)
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	query = textSearchScope(query, q.Search)

	var candidates []*models.Listing
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}

	results := candidates[:0]
	for _, l := range candidates {
		d := geo.Distance(q.Center, geo.Point{Latitude: l.Latitude, Longitude: l.Longitude})
		if d > q.RadiusMeters {
			continue
		}
		km := d / 1000
		l.DistanceKm = &km
		results = append(results, l)
	}

	// Distance dominates; expiry time breaks ties among equidistant results.
	sort.SliceStable(results, func(i, j int) bool {
		if *results[i].DistanceKm != *results[j].DistanceKm {
			return *results[i].DistanceKm < *results[j].DistanceKm
		}
		return results[i].ExpiryTime.Before(results[j].ExpiryTime)
	})

	if q.Offset >= len(results) {
		return []*models.Listing{}, nil
	}
	results = results[q.Offset:]
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (r *listingRepository) ListByDonor(ctx context.Context, donorID uint, limit, offset int) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := r.db.WithContext(ctx).
		Preload("Claims").
		Where("donor_id = ?", donorID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&listings).Error
	return listings, err
}

// AppendClaim records a claim if and only if the guard still holds: the
// listing is available and unexpired, the claimant is not the donor, and the
// claimant holds no prior claim. Guard and insert are a single conditional
// statement, so two concurrent attempts cannot both pass a stale check; the
// unique (listing_id, user_id) index backstops same-user races. Returns
// false when the guard rejected the claim.
func (r *listingRepository) AppendClaim(ctx context.Context, listingID uint, claim *models.Claim) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			INSERT INTO claims (listing_id, user_id, message, status, claimed_at, created_at, updated_at)
			SELECT ?, ?, ?, ?, ?, ?, ?
			WHERE EXISTS (
				SELECT 1 FROM listings
				WHERE id = ? AND status = ? AND expiry_time > ? AND donor_id <> ?
			)
			AND NOT EXISTS (
				SELECT 1 FROM claims WHERE listing_id = ? AND user_id = ?
			)`,
			listingID, claim.UserID, claim.Message, claim.Status, claim.ClaimedAt, claim.ClaimedAt, claim.ClaimedAt,
			listingID, models.StatusAvailable, claim.ClaimedAt, claim.UserID,
			listingID, claim.UserID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&models.Listing{}).
			Where("id = ?", listingID).
			Update("updated_at", claim.ClaimedAt).Error
	})
	if err != nil {
		// A same-user race slipping past NOT EXISTS lands on the unique
		// index; that is a guard rejection, not a storage failure.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

func (r *listingRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Listing{}).
		Where("status = ? AND expiry_time <= ?", models.StatusAvailable, now).
		Updates(map[string]any{
			"status":     models.StatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
