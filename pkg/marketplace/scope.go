package marketplace

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const (
	EnvTest = "test"
	EnvLive = "live"
)

var routingIDPattern = regexp.MustCompile(`^e(\d+)_(test|live)$`)

// Scope selects the platform tenant and environment every call is made for.
type Scope struct {
	PlatformID string
	Env        string
}

func (s Scope) Validate() error {
	if strings.TrimSpace(s.PlatformID) == "" {
		return fmt.Errorf("platform id is required")
	}
	if s.Env != EnvTest && s.Env != EnvLive {
		return fmt.Errorf("invalid platform env %q", s.Env)
	}
	return nil
}

func (s Scope) IsLive() bool {
	return s.Env == EnvLive
}

// RoutingID is the public identifier the platform hands to webhook senders.
func (s Scope) RoutingID() string {
	return "e" + s.PlatformID + "_" + s.Env
}

// ParseRoutingID decodes e<platformId>_<env>.
func ParseRoutingID(value string) (Scope, bool) {
	match := routingIDPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return Scope{}, false
	}
	return Scope{PlatformID: match[1], Env: match[2]}, true
}

type scopeKey struct{}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func ScopeFromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}
