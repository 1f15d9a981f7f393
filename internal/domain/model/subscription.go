package model

import (
	"fmt"
	"math"
	"time"
)

const (
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

// Subscription is the projection stored on the user document. It is the
// authority for access checks.
type Subscription struct {
	Plan            string     `json:"plan"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	Active          bool       `json:"isActive"`
	OrderID         string     `json:"orderId,omitempty"`
	OrderTrackingID string     `json:"orderTrackingId,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
	ActivatedBy     string     `json:"activatedBy,omitempty"`
	UserID          string     `json:"userId,omitempty"`
	DeactivatedAt   *time.Time `json:"deactivatedAt,omitempty"`
	DeactivatedBy   string     `json:"deactivatedBy,omitempty"`
}

// GrantsAccess reports whether the subscription entitles the holder at now.
func (s *Subscription) GrantsAccess(now time.Time) bool {
	return s != nil && s.Active && s.ExpiresAt.After(now)
}

// SubscriptionRecord is the immutable history entry written once per activation.
type SubscriptionRecord struct {
	Subscription
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionHistoryPath is the history document path for a user/order pair.
func SubscriptionHistoryPath(userID, orderID string) string {
	return fmt.Sprintf("subscriptions/%s_%s", userID, orderID)
}

// DaysRemaining rounds the time left up to whole days.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s == nil {
		return 0
	}
	return int(math.Ceil(s.ExpiresAt.Sub(now).Hours() / 24))
}

// StatusText renders a one-line summary of sub for display.
func StatusText(sub *Subscription, now time.Time) string {
	if sub == nil || !sub.Active {
		return "No active subscription"
	}
	days := sub.DaysRemaining(now)
	switch {
	case days > lifetimeThresholdDays:
		return fmt.Sprintf("%s - Lifetime access", sub.Plan)
	case days <= 0:
		return "Subscription expired"
	case days == 1:
		return fmt.Sprintf("%s - Expires tomorrow", sub.Plan)
	default:
		return fmt.Sprintf("%s - %d days remaining", sub.Plan, days)
	}
}
