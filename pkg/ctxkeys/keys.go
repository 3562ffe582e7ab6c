// Package ctxkeys defines typed context keys so values set by the HTTP
// middleware can be read back without key collisions across packages.
package ctxkeys

import "context"

// Key is a typed context key to prevent collisions.
type Key string

const (
	KeyUserID    Key = "user_id"
	KeyTenantID  Key = "tenant_id"
	KeyRole      Key = "role"
	KeyCompanyID Key = "company_id"
	KeyRequestID Key = "request_id"
	KeyJWTToken  Key = "jwt_token"
)

// GetTenantID extracts tenant_id from context.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyTenantID).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts user_id from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyUserID).(string); ok {
		return v
	}
	return ""
}

func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(KeyRole).(string); ok {
		return v
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyRequestID).(string); ok {
		return v
	}
	return ""
}

// GetCompanyID returns the company the caller is pinned to, if any.
func GetCompanyID(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(KeyCompanyID).(int)
	return v, ok
}
