// File: internal/infra/adapters/payment/pesapal_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PesapalGateway)(nil)

const (
	PesapalSandboxURL    = "https://cybqa.pesapal.com/pesapalv3"
	PesapalProductionURL = "https://pay.pesapal.com/v3"

	// used when the gateway returns an expiry we cannot parse
	fallbackTokenTTL = 5 * time.Minute
)

// PesapalOptions configures the REST client.
type PesapalOptions struct {
	ConsumerKey    string
	ConsumerSecret string
	Production     bool
	// BaseURL overrides the environment URL (tests).
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// PesapalGateway implements adapter.PaymentGateway against the Pesapal v3 JSON API.
type PesapalGateway struct {
	key     string
	secret  string
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

func NewPesapalGateway(opts PesapalOptions) (*PesapalGateway, error) {
	if opts.ConsumerKey == "" || opts.ConsumerSecret == "" {
		return nil, errors.New("pesapal consumer key/secret empty")
	}
	base := opts.BaseURL
	if base == "" {
		base = PesapalSandboxURL
		if opts.Production {
			base = PesapalProductionURL
		}
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &PesapalGateway{
		key:    opts.ConsumerKey,
		secret: opts.ConsumerSecret,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g, nil
}

func (g *PesapalGateway) Name() string { return "pesapal" }

// apiError is the error block Pesapal embeds in otherwise successful responses.
type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *apiError) present() bool {
	return e != nil && (e.Code != "" || e.Message != "" || e.ErrorType != "")
}

func (g *PesapalGateway) Authenticate(ctx context.Context) (tok model.GatewayToken, err error) {
	defer func(start time.Time) { metrics.ObserveGatewayRequest("auth", start, err) }(time.Now())

	var out struct {
		Token      string    `json:"token"`
		ExpiryDate string    `json:"expiryDate"`
		Error      *apiError `json:"error"`
		Status     string    `json:"status"`
		Message    string    `json:"message"`
	}
	status, _, err := g.do(ctx, http.MethodPost, "/api/Auth/RequestToken", "", map[string]string{
		"consumer_key":    g.key,
		"consumer_secret": g.secret,
	}, &out)
	if err != nil {
		return model.GatewayToken{}, &domain.GatewayAuthError{Status: status, Err: err}
	}
	if out.Error.present() || out.Status != "200" || out.Token == "" {
		msg := out.Message
		if out.Error.present() && out.Error.Message != "" {
			msg = out.Error.Message
		}
		if msg == "" {
			msg = "Authentication failed"
		}
		return model.GatewayToken{}, &domain.GatewayAuthError{Status: status, Message: msg}
	}
	return model.GatewayToken{Token: out.Token, ExpiresAt: parseExpiry(out.ExpiryDate, time.Now())}, nil
}

func (g *PesapalGateway) RegisterCallback(ctx context.Context, token, callbackURL string) (ipnID string, err error) {
	defer func(start time.Time) { metrics.ObserveGatewayRequest("register_ipn", start, err) }(time.Now())

	var out struct {
		IPNID  string    `json:"ipn_id"`
		URL    string    `json:"url"`
		Error  *apiError `json:"error"`
		Status string    `json:"status"`
	}
	_, _, err = g.do(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", token, map[string]string{
		"url":                   callbackURL,
		"ipn_notification_type": "GET",
	}, &out)
	if err != nil {
		return "", &domain.GatewayConfigError{CallbackURL: callbackURL, Err: err}
	}
	if out.Error.present() || out.Status != "200" || out.IPNID == "" {
		return "", &domain.GatewayConfigError{CallbackURL: callbackURL, Message: "IPN registration failed"}
	}
	return out.IPNID, nil
}

type orderPayload struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         int64          `json:"amount"`
	Description    string         `json:"description"`
	RedirectMode   string         `json:"redirect_mode"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	Billing        billingPayload `json:"billing_address"`
}

type billingPayload struct {
	PhoneNumber  string `json:"phone_number,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

func (g *PesapalGateway) SubmitOrder(ctx context.Context, token string, order adapter.OrderRequest) (resp adapter.OrderResponse, err error) {
	defer func(start time.Time) { metrics.ObserveGatewayRequest("submit_order", start, err) }(time.Now())

	payload := orderPayload{
		ID:             order.ID,
		Currency:       order.Currency,
		Amount:         order.Amount,
		Description:    order.Description,
		RedirectMode:   "TOP_WINDOW",
		CallbackURL:    order.CallbackURL,
		NotificationID: order.NotificationID,
		Billing: billingPayload{
			PhoneNumber:  order.Billing.PhoneNumber,
			EmailAddress: order.Billing.Email,
			CountryCode:  order.Billing.CountryCode,
			FirstName:    order.Billing.FirstName,
			LastName:     order.Billing.LastName,
		},
	}
	var out struct {
		OrderTrackingID   string    `json:"order_tracking_id"`
		MerchantReference string    `json:"merchant_reference"`
		RedirectURL       string    `json:"redirect_url"`
		Error             *apiError `json:"error"`
		Status            string    `json:"status"`
	}
	status, raw, err := g.do(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, payload, &out)
	if err != nil {
		return adapter.OrderResponse{}, &domain.OrderSubmissionError{OrderID: order.ID, Status: status, Raw: raw, Err: err}
	}
	if out.Error.present() || out.Status != "200" {
		return adapter.OrderResponse{}, &domain.OrderSubmissionError{OrderID: order.ID, Status: status, Raw: raw}
	}
	return adapter.OrderResponse{
		OrderTrackingID:   out.OrderTrackingID,
		MerchantReference: out.MerchantReference,
		RedirectURL:       out.RedirectURL,
	}, nil
}

func (g *PesapalGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (st adapter.TransactionStatus, err error) {
	defer func(start time.Time) { metrics.ObserveGatewayRequest("transaction_status", start, err) }(time.Now())

	var out struct {
		PaymentMethod            string  `json:"payment_method"`
		Amount                   float64 `json:"amount"`
		ConfirmationCode         string  `json:"confirmation_code"`
		PaymentStatusDescription string  `json:"payment_status_description"`
		Message                  string  `json:"message"`
		StatusCode               int     `json:"status_code"`
		MerchantReference        string  `json:"merchant_reference"`
		Currency                 string  `json:"currency"`
	}
	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	if _, _, err = g.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return adapter.TransactionStatus{}, err
	}
	return adapter.TransactionStatus{
		StatusCode:        out.StatusCode,
		Description:       out.PaymentStatusDescription,
		ConfirmationCode:  out.ConfirmationCode,
		Message:           out.Message,
		PaymentMethod:     out.PaymentMethod,
		Amount:            out.Amount,
		Currency:          out.Currency,
		MerchantReference: out.MerchantReference,
	}, nil
}

// do sends one JSON request. It returns the HTTP status and the raw body so
// callers can keep the payload of rejected requests.
func (g *PesapalGateway) do(ctx context.Context, method, path, token string, body any, out any) (int, string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, "", err
		}
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, "", err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, rdr)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(raw), fmt.Errorf("pesapal %s: http %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, string(raw), fmt.Errorf("pesapal %s: decode: %w", path, err)
	}
	return resp.StatusCode, string(raw), nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseExpiry reads the token expiry. Zone-less values are taken as UTC.
func parseExpiry(s string, now time.Time) time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now.Add(fallbackTokenTTL)
}
