// Package auth authenticates requests and binds the acting identity to the
// context. The tenant always comes from the verified token, never from
// request parameters or headers.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"veritrail/internal/actor"
	"veritrail/pkg/domain"
	"veritrail/pkg/requestcontext"
)

// Claims are the token claims the trust core relies on.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	SID      string   `json:"sid"`
	jwt.RegisteredClaims
}

// Validator verifies access tokens. Implemented by JWTValidator.
type Validator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTValidator verifies HS256-signed tokens with a shared key.
type JWTValidator struct {
	key []byte
}

func NewJWTValidator(signingKey string) (*JWTValidator, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	return &JWTValidator{key: []byte(signingKey)}, nil
}

func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return claims, nil
}

// TenantGate reports whether a tenant may authenticate. Deactivation is an
// immediate boundary: tokens for inactive tenants are rejected here even
// while still unexpired.
type TenantGate interface {
	IsActive(ctx context.Context, tenantID domain.TenantID) (bool, error)
}

// SecurityReporter receives token rejections for the SOC pipeline.
type SecurityReporter interface {
	TokenRejected(ctx context.Context, detail string)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token, checks the tenant gate, and binds
// the actor to the request context. gate and reporter may be nil.
func RequireAuth(validator Validator, gate TenantGate, reporter SecurityReporter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(detail string) {
				logger.WarnContext(ctx, "unauthorized request",
					"detail", detail,
					"request_id", requestcontext.RequestID(ctx),
				)
				if reporter != nil {
					reporter.TokenRejected(ctx, detail)
				}
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				reject("missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject("invalid token")
				return
			}

			a, err := actorFromClaims(claims)
			if err != nil {
				reject("malformed claims")
				return
			}

			if gate != nil {
				active, err := gate.IsActive(ctx, a.TenantID)
				if err != nil {
					logger.ErrorContext(ctx, "could not check tenant status",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Could not validate token")
					return
				}
				if !active {
					reject("tenant is inactive")
					return
				}
			}

			a = a.WithClientMetadata(requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx))
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, a)))
		})
	}
}

func actorFromClaims(claims *Claims) (actor.Context, error) {
	tenantID, err := domain.ParseTenantID(claims.TenantID)
	if err != nil {
		return actor.Context{}, err
	}
	userID, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return actor.Context{}, err
	}
	sessionID, err := domain.ParseSessionID(claims.SID)
	if err != nil {
		return actor.Context{}, err
	}
	roles, err := domain.ParseRoles(claims.Roles)
	if err != nil {
		return actor.Context{}, err
	}

	a := actor.New(tenantID, userID, roles, sessionID)
	return a, a.Validate()
}
