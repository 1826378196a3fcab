package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxActionTypeLength bounds the action type key in characters.
const MaxActionTypeLength = 256

// ValidateActionType checks that an action type is present. Any other
// string is valid; unknown action types earn the default point value.
func ValidateActionType(actionType string) error {
	if strings.TrimSpace(actionType) == "" {
		return fmt.Errorf("actionType is required")
	}
	if utf8.RuneCountInString(actionType) > MaxActionTypeLength {
		return fmt.Errorf("actionType exceeds %d characters", MaxActionTypeLength)
	}
	return nil
}

// ValidateUserID checks that a caller identity carries a user id.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("userId is required")
	}
	return nil
}

// NormalizeMetadata returns metadata as a JSON object, mapping empty and
// null input to {}.
func NormalizeMetadata(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("metadata must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}
