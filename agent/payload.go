package agent

import (
	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

// Payload accessors. All report malformed input as invalid-request errors
// naming the field.

func payloadString(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", eduerrors.NewInvalidRequestError("agent", "missing field "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", eduerrors.NewInvalidRequestError("agent", "field "+key+" must be a non-empty string")
	}
	return s, nil
}

func payloadOptionalString(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func payloadUUID(payload map[string]any, key string) (uuid.UUID, error) {
	s, err := payloadString(payload, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, eduerrors.NewInvalidRequestError("agent", "field "+key+" must be a UUID")
	}
	return id, nil
}

func payloadInt(payload map[string]any, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	default:
		return fallback
	}
}
