package adapter

import (
	"context"

	"video-subscription-storefront/internal/domain/model"
)

// BillingAddress is the customer block sent with an order.
type BillingAddress struct {
	Email       string
	PhoneNumber string
	CountryCode string
	FirstName   string
	LastName    string
}

// OrderRequest is a gateway order submission. Amount is in whole currency units.
type OrderRequest struct {
	ID             string
	Currency       string
	Amount         int64
	Description    string
	CallbackURL    string
	NotificationID string
	Billing        BillingAddress
}

// OrderResponse identifies the submitted order on the gateway side.
type OrderResponse struct {
	OrderTrackingID   string
	MerchantReference string
	RedirectURL       string
}

// TransactionStatus is the gateway view of a transaction.
type TransactionStatus struct {
	StatusCode        int
	Description       string
	ConfirmationCode  string
	Message           string
	PaymentMethod     string
	Amount            float64
	Currency          string
	MerchantReference string
}

// Status maps the numeric status code.
func (s TransactionStatus) Status() model.PaymentStatus { return model.StatusFromCode(s.StatusCode) }

// PaymentGateway is the hex port for the hosted payment gateway.
type PaymentGateway interface {
	Name() string

	// Authenticate exchanges consumer credentials for a bearer token.
	Authenticate(ctx context.Context) (model.GatewayToken, error)
	// RegisterCallback registers callbackURL for notifications and returns its notification id.
	RegisterCallback(ctx context.Context, token, callbackURL string) (string, error)
	// SubmitOrder creates an order and returns the hosted payment page URL.
	SubmitOrder(ctx context.Context, token string, order OrderRequest) (OrderResponse, error)
	// GetTransactionStatus queries the gateway for the state of a tracked order.
	GetTransactionStatus(ctx context.Context, token, trackingID string) (TransactionStatus, error)
}
