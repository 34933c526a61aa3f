package card

import (
	"context"
)

// ReportedConfirmer replays a confirmation that already happened in the
// browser (Stripe.js) and was reported to the gateway.
type ReportedConfirmer struct {
	Result ConfirmResult
	Err    *SDKError
}

func (r ReportedConfirmer) ConfirmCardPayment(ctx context.Context, clientSecret string) (*ConfirmResult, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	res := r.Result
	expected := IntentIDFromSecret(clientSecret)
	if res.PaymentIntentID == "" {
		res.PaymentIntentID = expected
	}
	if expected != "" && res.PaymentIntentID != expected {
		return nil, &SDKError{
			Type:    "invalid_request_error",
			Code:    "payment_intent_mismatch",
			Message: "reported payment intent does not belong to this checkout",
		}
	}
	return &res, nil
}
