package domain

import "fmt"

// GatewayAuthError is returned when the payment gateway rejects the consumer
// credentials or the token request cannot be completed.
type GatewayAuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *GatewayAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway auth failed (status %d): %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway auth failed (status %d): %s", e.Status, e.Message)
}

func (e *GatewayAuthError) Unwrap() error { return e.Err }

// GatewayConfigError is returned when the callback (IPN) registration fails.
type GatewayConfigError struct {
	CallbackURL string
	Message     string
	Err         error
}

func (e *GatewayConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway callback registration failed for %s: %s: %v", e.CallbackURL, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway callback registration failed for %s: %s", e.CallbackURL, e.Message)
}

func (e *GatewayConfigError) Unwrap() error { return e.Err }

// OrderSubmissionError carries the raw gateway payload of a rejected order.
type OrderSubmissionError struct {
	OrderID string
	Status  int
	Raw     string
	Err     error
}

func (e *OrderSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %s submission failed (status %d): %v", e.OrderID, e.Status, e.Err)
	}
	return fmt.Sprintf("order %s submission failed (status %d): %s", e.OrderID, e.Status, e.Raw)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

// VerificationError wraps transport or decode failures while querying a
// transaction status. Callers treat it as "try again later".
type VerificationError struct {
	TrackingID string
	Err        error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify transaction %s: %v", e.TrackingID, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// LedgerActivationError means money was collected but the subscription could
// not be recorded. It needs manual reconciliation.
type LedgerActivationError struct {
	UserID  string
	OrderID string
	Plan    string
}

func (e *LedgerActivationError) Error() string {
	return fmt.Sprintf("subscription activation failed for user %s order %s plan %q", e.UserID, e.OrderID, e.Plan)
}

// GrantKind classifies why a download grant was refused.
type GrantKind string

const (
	GrantInvalid GrantKind = "invalid"
	GrantUsed    GrantKind = "used"
	GrantExpired GrantKind = "expired"
	GrantFailure GrantKind = "failure"
)

// GrantValidationError is returned when a download token cannot be redeemed.
type GrantValidationError struct {
	Kind GrantKind
	Err  error
}

func (e *GrantValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download grant %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("download grant %s", e.Kind)
}

func (e *GrantValidationError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the person holding the link.
func (e *GrantValidationError) UserMessage() string {
	switch e.Kind {
	case GrantUsed:
		return "This download link has already been used. Subscribe to www.luoancientmovies.com for unlimited downloads."
	case GrantExpired:
		return "This download link has expired. Please generate a new one."
	case GrantFailure:
		return "Failed to validate download link"
	default:
		return "Invalid download link"
	}
}
