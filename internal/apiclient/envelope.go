package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeEnvelope is the one place where backend response shapes are
// normalized. The backend answers with any of
//
//	{"success": true, "data": {...}}
//	{"success": true, "<key>": {...}}
//	{"data": {"<key>": {...}}}
//	[...] or a bare resource object
//
// and every one of them decodes into out. A body with "success": false is
// reported as a client error.
func decodeEnvelope(body []byte, key string, out any) error {
	raw, err := unwrap(body, key)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return decodeError(fmt.Errorf("decode %q: %w", key, err))
	}
	return nil
}

func unwrap(body []byte, key string) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] != '{' {
		return body, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError(err)
	}

	if ok, present := env["success"]; present && bytes.Equal(bytes.TrimSpace(ok), []byte("false")) {
		return nil, &Error{Kind: KindClient, Status: 200, Message: messageOr(body, 200)}
	}

	if key != "" {
		if v, ok := env[key]; ok {
			return v, nil
		}
	}

	if data, ok := env["data"]; ok {
		if key != "" {
			if inner := innerField(data, key); inner != nil {
				return inner, nil
			}
		}
		return data, nil
	}

	return body, nil
}

func innerField(data json.RawMessage, key string) json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m[key]
}
