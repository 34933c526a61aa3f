package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/akeditz/storefront/internal/domain"
)

type PaymentIntentRequest struct {
	ProjectID string  `json:"projectId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// PaymentIntent carries the opaque client secret consumed by the card SDK.
type PaymentIntent struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type QRPaymentRequest struct {
	ProjectID string  `json:"projectId"`
	Amount    float64 `json:"amount"`
}

// QRPayment is a server-generated QR payload and the payment it refers to.
type QRPayment struct {
	PaymentID string     `json:"paymentId"`
	QRCode    string     `json:"qrCode"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	var out PaymentIntent
	if err := c.post(ctx, "/payments/create-payment-intent", req, "", &out); err != nil {
		return nil, err
	}
	if out.ClientSecret == "" {
		return nil, decodeError(fmt.Errorf("response missing clientSecret"))
	}
	return &out, nil
}

// ConfirmPayment asks the backend to finalize a card payment.
func (c *Client) ConfirmPayment(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	body := map[string]string{"paymentIntentId": paymentIntentID}
	var out domain.Payment
	if err := c.post(ctx, "/payments/confirm-payment", body, "payment", &out); err != nil {
		return nil, err
	}
	out.Status = domain.NormalizePaymentStatus(string(out.Status))
	if out.PaymentIntentID == "" {
		out.PaymentIntentID = paymentIntentID
	}
	return &out, nil
}

func (c *Client) CreateQRPayment(ctx context.Context, req QRPaymentRequest) (*QRPayment, error) {
	var out QRPayment
	if err := c.post(ctx, "/payments/create-qr-payment", req, "", &out); err != nil {
		return nil, err
	}
	if out.PaymentID == "" || out.QRCode == "" {
		return nil, decodeError(fmt.Errorf("response missing paymentId or qrCode"))
	}
	return &out, nil
}

func (c *Client) CheckQRPaymentStatus(ctx context.Context, paymentID string) (domain.PaymentStatus, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/payments/check-qr-payment-status/"+url.PathEscape(paymentID), nil, "", &out); err != nil {
		return "", err
	}
	return domain.NormalizePaymentStatus(out.Status), nil
}

// MyProjects lists the projects the current user has purchased.
func (c *Client) MyProjects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	if err := c.get(ctx, "/payments/my-projects", nil, "projects", &out); err != nil {
		return nil, err
	}
	for i := range out {
		c.normalizeProject(&out[i])
	}
	return out, nil
}

func (c *Client) UserPayments(ctx context.Context) ([]domain.Payment, error) {
	var out []domain.Payment
	if err := c.get(ctx, "/payments/user-payments", nil, "payments", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Status = domain.NormalizePaymentStatus(string(out[i].Status))
	}
	return out, nil
}
