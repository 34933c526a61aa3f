package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCanceled   PaymentStatus = "canceled"

	// PaymentCreated is the initial state of a QR payment.
	PaymentCreated PaymentStatus = "created"
)

// NormalizePaymentStatus folds the backend's status spellings into the
// canonical set ("paid" and "succeeded" are the same outcome).
func NormalizePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "succeeded", "success", "completed":
		return PaymentSucceeded
	case "cancelled", "canceled":
		return PaymentCanceled
	case "":
		return PaymentPending
	default:
		return PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	}
}

// Terminal reports whether no further transition is expected.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentSucceeded, PaymentFailed, PaymentRefunded, PaymentCanceled:
		return true
	}
	return false
}

// Payment mirrors the backend's payment resource.
type Payment struct {
	ID              string        `json:"_id"`
	UserID          Ref           `json:"user"`
	ProjectID       Ref           `json:"project"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency,omitempty"`
	Status          PaymentStatus `json:"status"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	QRPaymentID     string        `json:"qrPaymentId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Ref is a reference to another resource. The backend sends either the bare
// id or the populated resource; only the id is kept.
type Ref string

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = ""
	case b[0] == '{':
		var obj struct {
			ID  string `json:"_id"`
			Alt string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if obj.ID == "" {
			obj.ID = obj.Alt
		}
		*r = Ref(obj.ID)
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
	}
	return nil
}
