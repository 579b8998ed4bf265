// Package payment hands bookings to the external payment processor over HTTP.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
)

const (
	sessionsPath          = "/v1/sessions"
	refundsPath           = "/v1/refunds"
	headerIdempotencyKey  = "Idempotency-Key"
	headerAuthorization   = "Authorization"
	contentTypeJSON       = "application/json"
	defaultRequestTimeout = 5 * time.Second
	maxErrorBodyBytes     = 4096
	errorOperationPayment = "payment"
	errorSubjectSession   = "session"
	errorSubjectRefund    = "refund"
	errorCodeEncode       = "encode"
	errorCodeTransport    = "transport"
	errorCodeUpstream     = "upstream"
	errorCodeRejected     = "rejected"
	errorCodeDecode       = "decode"
)

// ErrPaymentRejected marks a 4xx response; retrying the same request will not help.
var ErrPaymentRejected = errors.New("payment request rejected")

// Config configures the HTTP gateway.
type Config struct {
	BaseURL   string
	APIKey    string
	ReturnURL string
	Timeout   time.Duration
}

// Gateway implements reservation.PaymentGateway against a JSON HTTP API.
type Gateway struct {
	baseURL    string
	apiKey     string
	returnURL  string
	httpClient *http.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(gateway *Gateway) {
		if client != nil {
			gateway.httpClient = client
		}
	}
}

type sessionRequestBody struct {
	BookingID   string `json:"booking_id"`
	CustomerID  string `json:"customer_id"`
	CharterID   string `json:"charter_id"`
	AmountCents int64  `json:"amount_cents"`
	ExpiresAt   string `json:"expires_at"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type sessionResponseBody struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type refundRequestBody struct {
	BookingID   string `json:"booking_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// NewGateway validates the config and returns a Gateway.
func NewGateway(config Config, opts ...Option) (*Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: payment base url is required", reservation.ErrInvalidServiceConfig)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	gateway := &Gateway{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(config.APIKey),
		returnURL:  strings.TrimSpace(config.ReturnURL),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway, nil
}

// CreateSession opens a payment session. The booking id doubles as idempotency key,
// so a retried call never opens a second session for the same booking.
func (gateway *Gateway) CreateSession(ctx context.Context, request reservation.PaymentSessionRequest) (reservation.PaymentSession, error) {
	body := sessionRequestBody{
		BookingID:   request.BookingID.String(),
		CustomerID:  request.CustomerID.String(),
		CharterID:   request.CharterID.String(),
		AmountCents: request.Amount.Int64(),
		ExpiresAt:   request.ExpiresAt.UTC().Format(time.RFC3339),
		ReturnURL:   gateway.returnURL,
	}
	var response sessionResponseBody
	if err := gateway.post(ctx, sessionsPath, "session:"+request.BookingID.String(), errorSubjectSession, body, &response); err != nil {
		return reservation.PaymentSession{}, err
	}
	if strings.TrimSpace(response.SessionID) == "" {
		return reservation.PaymentSession{}, reservation.WrapError(errorOperationPayment, errorSubjectSession, errorCodeDecode, errors.New("missing session id"))
	}
	return reservation.PaymentSession{SessionID: response.SessionID, RedirectURL: response.RedirectURL}, nil
}

// RequestRefund asks the processor to return a captured payment.
func (gateway *Gateway) RequestRefund(ctx context.Context, request reservation.RefundRequest) error {
	body := refundRequestBody{
		BookingID:   request.BookingID.String(),
		PaymentRef:  request.PaymentRef,
		AmountCents: request.Amount.Int64(),
		Reason:      request.Reason,
	}
	return gateway.post(ctx, refundsPath, "refund:"+request.BookingID.String()+":"+request.PaymentRef, errorSubjectRefund, body, nil)
}

func (gateway *Gateway) post(ctx context.Context, path string, idempotencyKey string, subject string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return reservation.WrapError(errorOperationPayment, subject, errorCodeEncode, err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return reservation.WrapError(errorOperationPayment, subject, errorCodeEncode, err)
	}
	httpRequest.Header.Set("Content-Type", contentTypeJSON)
	httpRequest.Header.Set("Accept", contentTypeJSON)
	httpRequest.Header.Set(headerIdempotencyKey, idempotencyKey)
	if gateway.apiKey != "" {
		httpRequest.Header.Set(headerAuthorization, "Bearer "+gateway.apiKey)
	}
	httpResponse, err := gateway.httpClient.Do(httpRequest)
	if err != nil {
		if ctx.Err() != nil {
			return reservation.WrapError(errorOperationPayment, subject, errorCodeTransport, ctx.Err())
		}
		return reservation.WrapError(errorOperationPayment, subject, errorCodeTransport, fmt.Errorf("%w: %v", reservation.ErrUpstreamUnavailable, err))
	}
	defer httpResponse.Body.Close()

	switch {
	case httpResponse.StatusCode >= http.StatusInternalServerError || httpResponse.StatusCode == http.StatusTooManyRequests:
		return reservation.WrapError(errorOperationPayment, subject, errorCodeUpstream,
			fmt.Errorf("%w: status %d: %s", reservation.ErrUpstreamUnavailable, httpResponse.StatusCode, readErrorBody(httpResponse.Body)))
	case httpResponse.StatusCode >= http.StatusBadRequest:
		return reservation.WrapError(errorOperationPayment, subject, errorCodeRejected,
			fmt.Errorf("%w: status %d: %s", ErrPaymentRejected, httpResponse.StatusCode, readErrorBody(httpResponse.Body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, httpResponse.Body)
		return nil
	}
	if err := json.NewDecoder(httpResponse.Body).Decode(out); err != nil {
		return reservation.WrapError(errorOperationPayment, subject, errorCodeDecode, err)
	}
	return nil
}

func readErrorBody(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	return strings.TrimSpace(string(raw))
}
