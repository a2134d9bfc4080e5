// Package seed provides helpers to create demo listing data for development
// and testing.
package seed

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"foodshare/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Options control how generated listings are spread around a center point.
type Options struct {
	CenterLat float64
	CenterLng float64
	SpreadKm  float64
	// MaxHoursAhead bounds how far in the future expiry times land.
	MaxHoursAhead int
}

// Factory builds listing entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	r    *rand.Rand
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	if opts.SpreadKm <= 0 {
		opts.SpreadKm = 8
	}
	if opts.MaxHoursAhead <= 0 {
		opts.MaxHoursAhead = 48
	}
	return &Factory{
		db:   db,
		opts: opts,
		r:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var quantityUnits = []string{"servings", "boxes", "bags", "trays", "loaves", "cases"}

// BuildListing constructs a listing near the configured center but does not
// persist it.
func (f *Factory) BuildListing(donorID uint, overrides ...func(*models.Listing)) *models.Listing {
	category := models.Categories[f.r.Intn(len(models.Categories))]

	listing := &models.Listing{
		DonorID:     donorID,
		DonorName:   gofakeit.Company(),
		Title:       fmt.Sprintf("%s %s", gofakeit.AdjectiveDescriptive(), gofakeit.Dessert()),
		Description: gofakeit.Sentence(12),
		Category:    category,
		Quantity:    fmt.Sprintf("%d %s", 1+f.r.Intn(30), quantityUnits[f.r.Intn(len(quantityUnits))]),
		Address:     gofakeit.Street() + ", " + gofakeit.City(),
		Status:      models.StatusAvailable,
		Verified:    f.r.Intn(4) == 0,
		ExpiryTime:  time.Now().Add(time.Duration(1+f.r.Intn(f.opts.MaxHoursAhead)) * time.Hour),
	}
	listing.Latitude, listing.Longitude = f.randomPoint()

	if f.r.Intn(2) == 0 {
		n := 1 + f.r.Intn(3)
		picks := f.r.Perm(len(models.AllergenVocabulary))[:n]
		for _, i := range picks {
			listing.Allergens = append(listing.Allergens, models.AllergenVocabulary[i])
		}
	}
	if f.r.Intn(3) == 0 {
		listing.PickupInstructions = gofakeit.Sentence(8)
	}

	for _, override := range overrides {
		override(listing)
	}
	return listing
}

// CreateListings persists count generated listings spread across a handful
// of synthetic donors.
func (f *Factory) CreateListings(count int) ([]*models.Listing, error) {
	listings := make([]*models.Listing, 0, count)
	for i := 0; i < count; i++ {
		donorID := uint(1 + f.r.Intn(10))
		listings = append(listings, f.BuildListing(donorID))
	}
	if err := f.db.CreateInBatches(listings, 50).Error; err != nil {
		return nil, fmt.Errorf("failed to create listings: %w", err)
	}
	return listings, nil
}

// randomPoint picks a point uniformly within the configured spread of the
// center. One degree of latitude is roughly 111 km.
func (f *Factory) randomPoint() (lat, lng float64) {
	dLat := (f.r.Float64()*2 - 1) * f.opts.SpreadKm / 111.0
	cosLat := math.Cos(f.opts.CenterLat * math.Pi / 180)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	dLng := (f.r.Float64()*2 - 1) * f.opts.SpreadKm / (111.0 * cosLat)
	return f.opts.CenterLat + dLat, f.opts.CenterLng + dLng
}

// ClearAll removes all listings and claims. Development use only.
func ClearAll(db *gorm.DB) error {
	if err := db.Where("1 = 1").Delete(&models.Claim{}).Error; err != nil {
		return err
	}
	return db.Where("1 = 1").Delete(&models.Listing{}).Error
}

type fixtureListing struct {
	DonorID            uint     `yaml:"donor_id"`
	DonorName          string   `yaml:"donor_name"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description"`
	Category           string   `yaml:"category"`
	Quantity           string   `yaml:"quantity"`
	Allergens          []string `yaml:"allergens"`
	PickupInstructions string   `yaml:"pickup_instructions"`
	Latitude           float64  `yaml:"latitude"`
	Longitude          float64  `yaml:"longitude"`
	Address            string   `yaml:"address"`
	// ExpiresIn is a Go duration from now, e.g. "4h30m".
	ExpiresIn string `yaml:"expires_in"`
	Verified  bool   `yaml:"verified"`
}

type fixtureFile struct {
	Listings []fixtureListing `yaml:"listings"`
}

// LoadFixtures reads a YAML fixture file and persists its listings. Expiry
// times are expressed as durations from load time so fixtures never go
// stale.
func LoadFixtures(db *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("failed to parse fixture file: %w", err)
	}

	listings := make([]*models.Listing, 0, len(file.Listings))
	for i, fx := range file.Listings {
		d, err := time.ParseDuration(fx.ExpiresIn)
		if err != nil {
			return 0, fmt.Errorf("fixture %d: bad expires_in %q: %w", i, fx.ExpiresIn, err)
		}
		if !models.ValidCategory(fx.Category) {
			return 0, fmt.Errorf("fixture %d: unknown category %q", i, fx.Category)
		}
		listings = append(listings, &models.Listing{
			DonorID:            fx.DonorID,
			DonorName:          fx.DonorName,
			Title:              fx.Title,
			Description:        fx.Description,
			Category:           fx.Category,
			Quantity:           fx.Quantity,
			Allergens:          fx.Allergens,
			PickupInstructions: fx.PickupInstructions,
			Latitude:           fx.Latitude,
			Longitude:          fx.Longitude,
			Address:            fx.Address,
			Status:             models.StatusAvailable,
			Verified:           fx.Verified,
			ExpiryTime:         time.Now().Add(d),
		})
	}
	if len(listings) == 0 {
		return 0, nil
	}
	if err := db.CreateInBatches(listings, 50).Error; err != nil {
		return 0, fmt.Errorf("failed to persist fixtures: %w", err)
	}
	return len(listings), nil
}
