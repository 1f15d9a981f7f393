package model

import (
	"strings"
	"time"

	"video-subscription-storefront/internal/domain"
)

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// User is the profile document at users/{id}. Subscription is nil when the
// user never subscribed.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email,omitempty"`
	Name         string        `json:"name,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// NewUser constructs a profile for a first sign-in.
func NewUser(id, email, name string) (*User, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}, nil
}

func UserPath(id string) string { return "users/" + id }

// SplitName splits a display name into first and last parts for the gateway
// billing address. Empty names fall back to "Customer".
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "Customer", ""
	}
	first = parts[0]
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}
