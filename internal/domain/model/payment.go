package model

import (
	"fmt"
	"time"

	"video-subscription-storefront/internal/domain"
)

// PendingPayment remembers an order between redirecting to the gateway and
// its callback. It is scoped to one browsing session.
type PendingPayment struct {
	OrderID         string    `json:"orderId"`
	OrderTrackingID string    `json:"orderTrackingId"`
	UserID          string    `json:"userId"`
	PlanName        string    `json:"planName"`
	PlanDays        int       `json:"planDays"`
	Amount          int64     `json:"amount"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CallbackResult latches a confirmed payment for a tracking id within a session.
type CallbackResult struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	ConfirmationCode string `json:"confirmationCode,omitempty"`
}

const CallbackResultSuccess = "success"

// GatewayToken is a bearer token issued by the payment gateway.
type GatewayToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ValidFor reports whether the token stays usable for at least margin past now.
func (t *GatewayToken) ValidFor(now time.Time, margin time.Duration) bool {
	return t != nil && t.Token != "" && t.ExpiresAt.Sub(now) > margin
}

// PaymentStatus is the gateway transaction outcome.
type PaymentStatus string

const (
	PaymentStatusInvalid   PaymentStatus = "INVALID"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusReversed  PaymentStatus = "REVERSED"
	PaymentStatusUnknown   PaymentStatus = "UNKNOWN"
)

// StatusFromCode maps the gateway numeric status code.
func StatusFromCode(code int) PaymentStatus {
	switch code {
	case 0:
		return PaymentStatusInvalid
	case 1:
		return PaymentStatusCompleted
	case 2:
		return PaymentStatusFailed
	case 3:
		return PaymentStatusReversed
	default:
		return PaymentStatusUnknown
	}
}

// CheckoutState is the storefront checkout progression.
type CheckoutState string

const (
	CheckoutSelectingPlan CheckoutState = "selecting_plan"
	CheckoutProcessing    CheckoutState = "processing"
	CheckoutRedirecting   CheckoutState = "redirecting"
)

// CheckoutEvent drives CheckoutState transitions.
type CheckoutEvent string

const (
	CheckoutEventPlanSelected CheckoutEvent = "plan_selected"
	CheckoutEventSubmitted    CheckoutEvent = "order_submitted"
	CheckoutEventFailed       CheckoutEvent = "failed"
	CheckoutEventReset        CheckoutEvent = "reset"
)

// NextCheckoutState returns the state after ev, or ErrInvalidTransition.
func NextCheckoutState(from CheckoutState, ev CheckoutEvent) (CheckoutState, error) {
	switch from {
	case CheckoutSelectingPlan:
		if ev == CheckoutEventPlanSelected {
			return CheckoutProcessing, nil
		}
	case CheckoutProcessing:
		switch ev {
		case CheckoutEventSubmitted:
			return CheckoutRedirecting, nil
		case CheckoutEventFailed:
			return CheckoutSelectingPlan, nil
		}
	case CheckoutRedirecting:
		if ev == CheckoutEventReset {
			return CheckoutSelectingPlan, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", domain.ErrInvalidTransition, ev, from)
}

// CallbackState is the outcome of reconciling a gateway callback.
type CallbackState string

const (
	CallbackLoading   CallbackState = "loading"
	CallbackVerifying CallbackState = "verifying"
	CallbackSuccess   CallbackState = "success"
	CallbackPending   CallbackState = "pending"
	CallbackFailed    CallbackState = "failed"
)

// Terminal reports whether no further automatic progress happens from s.
func (s CallbackState) Terminal() bool {
	switch s {
	case CallbackSuccess, CallbackPending, CallbackFailed:
		return true
	}
	return false
}
