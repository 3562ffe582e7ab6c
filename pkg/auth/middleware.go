package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"econova/pkg/ctxkeys"
)

const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleService = "service"
)

type jwtMiddlewareConfig struct {
	apiKeys      *APIKeyVerifier
	serviceToken string
	serviceID    Identity
}

// JWTOption configures optional behaviour for JWTAuthMiddleware.
type JWTOption func(*jwtMiddlewareConfig)

// WithAPIKeys accepts tenant API keys as bearer tokens.
func WithAPIKeys(v *APIKeyVerifier) JWTOption {
	return func(cfg *jwtMiddlewareConfig) {
		cfg.apiKeys = v
	}
}

// WithServiceToken accepts a shared service token that acts as id.
func WithServiceToken(token string, id Identity) JWTOption {
	return func(cfg *jwtMiddlewareConfig) {
		cfg.serviceToken = token
		cfg.serviceID = id
	}
}

// JWTAuthMiddleware authenticates the bearer token as a JWT, an API key or
// the service token, in that order, and stores the identity on the request.
func JWTAuthMiddleware(secret []byte, opts ...JWTOption) gin.HandlerFunc {
	var cfg jwtMiddlewareConfig
	for _, o := range opts {
		o(&cfg)
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}
		token = strings.TrimSpace(token)

		claims, err := ValidateJWT(token, secret)
		if err == nil {
			setIdentity(c, claims.Identity, token)
			c.Next()
			return
		}
		if errors.Is(err, ErrExpiredJWT) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return
		}

		if cfg.apiKeys.Len() > 0 {
			if id, err := cfg.apiKeys.Verify(c.Request.Context(), token); err == nil {
				setIdentity(c, id, "")
				c.Next()
				return
			}
		}

		if cfg.serviceToken != "" && ValidateServiceToken(token, cfg.serviceToken) == nil {
			setIdentity(c, cfg.serviceID, "")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
	}
}

// RequireRole rejects authenticated callers whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(string(ctxkeys.KeyRole))) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

// IdentityFromGin reads back what JWTAuthMiddleware stored.
func IdentityFromGin(c *gin.Context) (Identity, bool) {
	tenantID := c.GetString(string(ctxkeys.KeyTenantID))
	if tenantID == "" {
		return Identity{}, false
	}
	id := Identity{
		UserID:   c.GetString(string(ctxkeys.KeyUserID)),
		TenantID: tenantID,
		Role:     c.GetString(string(ctxkeys.KeyRole)),
	}
	if company, ok := c.Get(string(ctxkeys.KeyCompanyID)); ok {
		if v, ok := company.(int); ok {
			id.CompanyID = &v
		}
	}
	return id, true
}

func setIdentity(c *gin.Context, id Identity, jwtToken string) {
	c.Set(string(ctxkeys.KeyUserID), id.UserID)
	c.Set(string(ctxkeys.KeyTenantID), id.TenantID)
	c.Set(string(ctxkeys.KeyRole), id.Role)
	if jwtToken != "" {
		c.Set(string(ctxkeys.KeyJWTToken), jwtToken)
	}

	ctx := c.Request.Context()
	ctx = context.WithValue(ctx, ctxkeys.KeyUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxkeys.KeyTenantID, id.TenantID)
	ctx = context.WithValue(ctx, ctxkeys.KeyRole, id.Role)
	if id.CompanyID != nil {
		c.Set(string(ctxkeys.KeyCompanyID), *id.CompanyID)
		ctx = context.WithValue(ctx, ctxkeys.KeyCompanyID, *id.CompanyID)
	}
	c.Request = c.Request.WithContext(ctx)
}
