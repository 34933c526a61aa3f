package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

// StripeConfirmer confirms intents server-side with a Stripe secret key and
// an already tokenized payment method (e.g. "pm_card_visa" in test mode).
type StripeConfirmer struct {
	client        paymentintent.Client
	paymentMethod string
	returnURL     string
}

// NewStripeConfirmer builds a confirmer. A nil backend uses Stripe's API.
func NewStripeConfirmer(secretKey, paymentMethod, returnURL string, backend stripe.Backend) *StripeConfirmer {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeConfirmer{
		client:        paymentintent.Client{B: backend, Key: secretKey},
		paymentMethod: paymentMethod,
		returnURL:     returnURL,
	}
}

func (s *StripeConfirmer) ConfirmCardPayment(ctx context.Context, clientSecret string) (*ConfirmResult, error) {
	id := IntentIDFromSecret(clientSecret)
	if id == "" {
		return nil, &SDKError{Type: "invalid_request_error", Message: "malformed client secret"}
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(s.paymentMethod),
	}
	if s.returnURL != "" {
		params.ReturnURL = stripe.String(s.returnURL)
	}
	params.Context = ctx

	pi, err := s.client.Confirm(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return nil, &SDKError{
				Type:    string(stripeErr.Type),
				Code:    string(stripeErr.Code),
				Message: stripeErr.Msg,
			}
		}
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}

	res := &ConfirmResult{PaymentIntentID: pi.ID, Status: string(pi.Status)}
	if pi.Status == stripe.PaymentIntentStatusRequiresAction && pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		res.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return res, nil
}
