package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	pkgAuth "github.com/angelmondragon/mangopay-gateway/pkg/auth"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

// Auth verifies the platform-issued bearer token and stores the caller
// identity, its platform scope and the anti-fraud headers on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			identity := caller.FromClaims(claims)
			identity.Headers = caller.Headers{
				Accept:         r.Header.Get("Accept"),
				UserAgent:      r.Header.Get("User-Agent"),
				AcceptLanguage: r.Header.Get("Accept-Language"),
			}
			identity.RemoteIP = clientIP(r)

			ctx := caller.WithIdentity(r.Context(), identity)
			if logg != nil {
				ctx = logg.WithPlatform(ctx, identity.PlatformID, identity.Env)
				if identity.HasUser() {
					ctx = logg.WithPlatformUser(ctx, identity.UserID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
