package mangopay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ID is a processor account or object id. Mangopay emits ids as decimal
// strings while some clients send numbers; both decode to the same value.
// The zero value means absent.
type ID int64

var errEmptyID = errors.New("empty processor id")

// ParseID parses a decimal id, ignoring surrounding whitespace.
func ParseID(value string) (ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errEmptyID
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid processor id %q", value)
	}
	return ID(n), nil
}

// IDFromJSON parses an id from a raw JSON string or number.
func IDFromJSON(raw json.RawMessage) (ID, error) {
	var id ID
	if err := id.UnmarshalJSON(raw); err != nil {
		return 0, err
	}
	if id.IsZero() {
		return 0, errEmptyID
	}
	return id, nil
}

func (id ID) IsZero() bool {
	return id == 0
}

func (id ID) String() string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(int64(id), 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(id.String())), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*id = 0
			return nil
		}
		parsed, err := ParseID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("invalid processor id %s", trimmed)
	}
	parsed, err := ParseID(n.String())
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Matches reports whether id equals any of the non-zero candidates.
func (id ID) Matches(candidates ...ID) bool {
	if id == 0 {
		return false
	}
	for _, candidate := range candidates {
		if candidate != 0 && candidate == id {
			return true
		}
	}
	return false
}
