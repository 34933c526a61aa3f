package card

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akeditz/storefront/internal/apiclient"
)

// SDK error types that carry a message meant for the user.
const (
	TypeValidation = "validation_error"
	TypeCard       = "card_error"
)

// SDKError is an error reported by the card SDK.
type SDKError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *SDKError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// UserMessage selects what to show for e. Validation and card errors are
// shown verbatim, anything else gets the generic message.
func (e *SDKError) UserMessage() string {
	if (e.Type == TypeValidation || e.Type == TypeCard) && e.Message != "" {
		return e.Message
	}
	return msgGeneric
}

// UserMessage returns the message to surface for a confirmation error.
func UserMessage(err error) string {
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr.UserMessage()
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiclient.UserMessage(err)
	}
	return msgGeneric
}

// IntentIDFromSecret extracts the intent id from a "pi_xxx_secret_yyy"
// client secret.
func IntentIDFromSecret(clientSecret string) string {
	if i := strings.Index(clientSecret, "_secret_"); i > 0 {
		return clientSecret[:i]
	}
	return ""
}
