// Package rpc holds the positional argument model shared by the access
// policy, the dispatcher and the workflows.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

const badArgsMessage = "processor args not acceptable"

// Args are the positional arguments of one call.
type Args []json.RawMessage

// ParseArgs accepts an array of arguments or a single object, which becomes
// the only positional argument. Missing args default to one empty object.
func ParseArgs(raw json.RawMessage) (Args, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Args{json.RawMessage(`{}`)}, nil
	}
	switch trimmed[0] {
	case '[':
		var args Args
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, BadArgs(fmt.Sprintf("malformed args: %v", err))
		}
		if len(args) == 0 {
			return Args{json.RawMessage(`{}`)}, nil
		}
		return args, nil
	case '{':
		return Args{json.RawMessage(append([]byte(nil), trimmed...))}, nil
	default:
		return nil, BadArgs("args must be an array or an object")
	}
}

// BadArgs builds the validation error every argument failure maps to.
func BadArgs(reason string) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, badArgsMessage)
	if reason != "" {
		err = err.WithDetails(map[string]any{"reason": reason})
	}
	return err
}

func (a Args) Has(i int) bool {
	if i < 0 || i >= len(a) {
		return false
	}
	trimmed := bytes.TrimSpace(a[i])
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ID decodes argument i as a processor id.
func (a Args) ID(i int) (mangopay.ID, error) {
	if !a.Has(i) {
		return 0, BadArgs(fmt.Sprintf("argument %d must be an id", i))
	}
	id, err := mangopay.IDFromJSON(a[i])
	if err != nil {
		return 0, BadArgs(fmt.Sprintf("argument %d must be an id", i))
	}
	return id, nil
}

// Object decodes argument i into out. The argument must be a JSON object.
func (a Args) Object(i int, out any) error {
	if !a.Has(i) {
		return BadArgs(fmt.Sprintf("argument %d must be an object", i))
	}
	trimmed := bytes.TrimSpace(a[i])
	if trimmed[0] != '{' {
		return BadArgs(fmt.Sprintf("argument %d must be an object", i))
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return BadArgs(fmt.Sprintf("argument %d: %v", i, err))
	}
	return nil
}

// Map decodes argument i as a generic object, or nil when absent.
func (a Args) Map(i int) (map[string]any, error) {
	if !a.Has(i) {
		return nil, nil
	}
	var out map[string]any
	if err := a.Object(i, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Body returns argument i as a raw JSON object for pass-through calls.
func (a Args) Body(i int) (json.RawMessage, error) {
	if !a.Has(i) {
		return nil, BadArgs(fmt.Sprintf("argument %d must be an object", i))
	}
	trimmed := bytes.TrimSpace(a[i])
	if trimmed[0] != '{' {
		return nil, BadArgs(fmt.Sprintf("argument %d must be an object", i))
	}
	return json.RawMessage(trimmed), nil
}
