package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindClient       Kind = "client"
	KindServer       Kind = "server"
	KindDecode       Kind = "decode"
)

// Error is the single error shape every client call returns.
// Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("api ")
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" if err did not come from the client.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// UserMessage returns the user-facing message for err.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func IsNetwork(err error) bool      { return KindOf(err) == KindNetwork }
func IsServer(err error) bool       { return KindOf(err) == KindServer }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsClient(err error) bool       { return KindOf(err) == KindClient }

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
}

func decodeError(err error) *Error {
	return &Error{Kind: KindDecode, Message: msgDecode, Err: err}
}

// errorFromResponse maps a >= 400 response onto an Error.
func errorFromResponse(status int, body []byte) *Error {
	switch {
	case status >= http.StatusInternalServerError:
		return &Error{Kind: KindServer, Status: status, Message: msgServer}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindUnauthorized, Status: status, Message: messageOr(body, status)}
	default:
		return &Error{Kind: KindClient, Status: status, Message: messageOr(body, status)}
	}
}

func messageOr(body []byte, status int) string {
	if msg := payloadMessage(body); msg != "" {
		return msg
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// payloadMessage extracts "message" or "error" from a JSON error body.
func payloadMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	var s string
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &s) == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
