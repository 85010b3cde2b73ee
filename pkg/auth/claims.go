package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Permission grants full access to every processor method.
const (
	PermissionMangopay = "integrations:read_write:mangopay"
	PermissionAll      = "integrations:read_write:all"
)

// AccessTokenPayload captures the data available when minting a caller token.
type AccessTokenPayload struct {
	UserID      string
	Permissions []string
	PlatformID  string
	Env         string
	JTI         string
}

// AccessTokenClaims is the platform-issued token presented to the gateway.
type AccessTokenClaims struct {
	UserID      string   `json:"user_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	PlatformID  string   `json:"platform_id"`
	Env         string   `json:"env"`
	jwt.RegisteredClaims
}

// HasPermission reports whether any of the wanted permissions was granted.
func (c *AccessTokenClaims) HasPermission(wanted ...string) bool {
	if c == nil {
		return false
	}
	for _, granted := range c.Permissions {
		for _, w := range wanted {
			if granted == w {
				return true
			}
		}
	}
	return false
}
