package domain

import "errors"

// Sentinel errors shared by the use cases and adapters. Wrap them with %w
// and test with errors.Is.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid state transition")

	// Checkout
	ErrUnknownPlan        = errors.New("unknown subscription plan")
	ErrPlanNotPurchasable = errors.New("plan cannot be purchased")
	ErrLoginRequired      = errors.New("login required")
)
