// Package expiry derives time-dependent listing state. Every function takes
// an explicit clock value so behavior is deterministic under test and free
// of hidden time coupling.
package expiry

import (
	"fmt"
	"time"

	"foodshare/internal/models"
)

// Urgency levels derived from time remaining until expiry.
const (
	UrgencyUrgent   = "urgent"   // under 1 hour
	UrgencyModerate = "moderate" // 1 to under 3 hours
	UrgencyGood     = "good"     // 3 hours or more
)

// IsAvailable reports whether the listing can currently be claimed.
// A stale stored status never makes an expired listing available.
func IsAvailable(l *models.Listing, now time.Time) bool {
	return l.Status == models.StatusAvailable && l.ExpiryTime.After(now)
}

// TimeRemaining formats the time until expiry, e.g. "2h 5m remaining"
// or "45m remaining". Returns "Expired" once the expiry time has passed.
func TimeRemaining(l *models.Listing, now time.Time) string {
	diff := l.ExpiryTime.Sub(now)
	if diff <= 0 {
		return "Expired"
	}

	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)

	if hours > 0 {
		return fmt.Sprintf("%dh %dm remaining", hours, minutes)
	}
	return fmt.Sprintf("%dm remaining", minutes)
}

// UrgencyLevel classifies time remaining into half-open intervals:
// [0,1h) urgent, [1h,3h) moderate, [3h,∞) good.
func UrgencyLevel(l *models.Listing, now time.Time) string {
	hours := l.ExpiryTime.Sub(now).Hours()
	if hours < 1 {
		return UrgencyUrgent
	}
	if hours < 3 {
		return UrgencyModerate
	}
	return UrgencyGood
}

// Enrich populates the listing's computed fields for the given clock value.
// Computed at read time, never persisted.
func Enrich(l *models.Listing, now time.Time) {
	l.TimeRemaining = TimeRemaining(l, now)
	l.UrgencyLevel = UrgencyLevel(l, now)
	l.IsAvailable = IsAvailable(l, now)
}
