package http

import "github.com/akeditz/storefront/internal/payments/card"

type beginReq struct {
	ProjectID string `json:"project_id"`
}

type methodReq struct {
	Method string `json:"method"`
}

type termsReq struct {
	Accepted bool `json:"accepted"`
}

// confirmReq is what the browser's payment SDK reported.
type confirmReq struct {
	PaymentIntentID string         `json:"payment_intent_id"`
	Status          string         `json:"status"`
	RedirectURL     string         `json:"redirect_url"`
	Error           *card.SDKError `json:"error,omitempty"`
}

func (r confirmReq) confirmer() card.ReportedConfirmer {
	return card.ReportedConfirmer{
		Result: card.ConfirmResult{
			PaymentIntentID: r.PaymentIntentID,
			Status:          r.Status,
			RedirectURL:     r.RedirectURL,
		},
		Err: r.Error,
	}
}
