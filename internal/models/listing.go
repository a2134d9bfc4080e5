package models

import (
	"time"
)

// Listing status values. Available listings transition to expired by time
// passage (sweeper or lazy derivation) and to claimed/completed through the
// fulfillment workflow. Expired and completed are terminal for content edits.
const (
	StatusAvailable = "available"
	StatusClaimed   = "claimed"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Listing categories.
const (
	CategoryPreparedFood = "prepared_food"
	CategoryBakedGoods   = "baked_goods"
	CategoryProduce      = "produce"
	CategoryPackagedFood = "packaged_food"
	CategoryBeverages    = "beverages"
)

// Claim status values.
const (
	ClaimStatusPending   = "pending"
	ClaimStatusApproved  = "approved"
	ClaimStatusRejected  = "rejected"
	ClaimStatusCompleted = "completed"
)

// Categories is the closed set of valid listing categories.
var Categories = []string{
	CategoryPreparedFood,
	CategoryBakedGoods,
	CategoryProduce,
	CategoryPackagedFood,
	CategoryBeverages,
}

// AllergenVocabulary is the fixed set of allergens a listing may declare.
var AllergenVocabulary = []string{
	"gluten", "dairy", "nuts", "eggs", "soy", "shellfish", "fish", "sesame",
}

// ValidCategory reports whether category is in the closed category set.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ValidAllergens reports whether every entry is in the allergen vocabulary.
func ValidAllergens(allergens []string) bool {
	for _, a := range allergens {
		found := false
		for _, v := range AllergenVocabulary {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Image is an attachment reference on a listing. Upload and transcoding
// happen outside this service; only the references round-trip.
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
}

// Listing is a donor's offer of surplus food.
type Listing struct {
	ID                 uint     `gorm:"primaryKey" json:"id"`
	DonorID            uint     `gorm:"not null;index:idx_listings_donor_created,priority:1" json:"donor_id"`
	DonorName          string   `gorm:"not null" json:"donor_name"`
	Title              string   `gorm:"not null" json:"title"`
	Description        string   `gorm:"not null" json:"description"`
	Category           string   `gorm:"not null;index:idx_listings_category_status,priority:1" json:"category"`
	Quantity           string   `gorm:"not null" json:"quantity"`
	Allergens          []string `gorm:"serializer:json" json:"allergens"`
	PickupInstructions string   `json:"pickup_instructions,omitempty"`
	Longitude          float64  `gorm:"not null" json:"longitude"`
	Latitude           float64  `gorm:"not null;index:idx_listings_latitude" json:"latitude"`
	Address            string   `gorm:"not null" json:"address"`
	ExpiryTime         time.Time `gorm:"not null;index:idx_listings_status_expiry,priority:2" json:"expiry_time"`
	Status             string    `gorm:"not null;default:available;index:idx_listings_status_expiry,priority:1;index:idx_listings_category_status,priority:2" json:"status"`
	Images             []Image   `gorm:"serializer:json" json:"images,omitempty"`
	Verified           bool      `json:"verified"`
	Views              int       `gorm:"not null;default:0" json:"views"`
	RatingAverage      float64   `gorm:"not null;default:0" json:"rating_average"`
	RatingCount        int       `gorm:"not null;default:0" json:"rating_count"`
	Claims             []Claim   `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"claims,omitempty"`
	CreatedAt          time.Time `gorm:"index:idx_listings_donor_created,priority:2" json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// TimeRemaining is not persisted; derived from ExpiryTime at read time
	TimeRemaining string `gorm:"-" json:"time_remaining,omitempty"`
	// UrgencyLevel is not persisted; derived from ExpiryTime at read time
	UrgencyLevel string `gorm:"-" json:"urgency_level,omitempty"`
	// IsAvailable is not persisted; derived from Status and ExpiryTime at read time
	IsAvailable bool `gorm:"-" json:"is_available"`
	// DistanceKm is set only on proximity search results (computed)
	DistanceKm *float64 `gorm:"-" json:"distance_km,omitempty"`
}

// Claim is a recipient's expressed interest in a listing. Claims are
// advisory: they do not reserve stock, and any number of distinct users may
// claim the same listing. The unique (listing_id, user_id) index enforces at
// most one claim per user per listing.
type Claim struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID uint      `gorm:"not null;uniqueIndex:idx_claims_listing_user,priority:1" json:"listing_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_claims_listing_user,priority:2" json:"user_id"`
	Message   string    `json:"message,omitempty"`
	Status    string    `gorm:"not null;default:pending" json:"status"`
	ClaimedAt time.Time `gorm:"not null" json:"claimed_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasClaimBy reports whether userID already holds a claim on the listing.
func (l *Listing) HasClaimBy(userID uint) bool {
	for _, c := range l.Claims {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// Editable reports whether content fields may still be changed.
// Expired and completed are terminal states.
func (l *Listing) Editable() bool {
	return l.Status != StatusExpired && l.Status != StatusCompleted
}
