package caller

import (
	"context"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
)

// Headers are the request headers the processor's anti-fraud checks need.
type Headers struct {
	Accept         string
	UserAgent      string
	AcceptLanguage string
}

// Language returns the two-letter language prefix of Accept-Language.
func (h Headers) Language() string {
	lang := strings.TrimSpace(h.AcceptLanguage)
	if len(lang) < 2 {
		return ""
	}
	return strings.ToLower(lang[:2])
}

// Identity is who is calling and for which platform tenant.
type Identity struct {
	UserID      string
	Permissions []string
	PlatformID  string
	Env         string
	Headers     Headers
	RemoteIP    string
}

// FromClaims builds an identity from a verified token.
func FromClaims(claims *auth.AccessTokenClaims) Identity {
	if claims == nil {
		return Identity{}
	}
	return Identity{
		UserID:      strings.TrimSpace(claims.UserID),
		Permissions: append([]string(nil), claims.Permissions...),
		PlatformID:  claims.PlatformID,
		Env:         claims.Env,
	}
}

// Privileged reports whether the caller holds the operator permission.
func (i Identity) Privileged() bool {
	for _, p := range i.Permissions {
		if p == auth.PermissionMangopay || p == auth.PermissionAll {
			return true
		}
	}
	return false
}

func (i Identity) HasUser() bool {
	return i.UserID != ""
}

func (i Identity) Scope() marketplace.Scope {
	return marketplace.Scope{PlatformID: i.PlatformID, Env: i.Env}
}

type ctxKey struct{}

// WithIdentity stores the identity and its marketplace scope on ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, identity)
	return marketplace.WithScope(ctx, identity.Scope())
}

func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(ctxKey{}).(Identity)
	return identity, ok
}
