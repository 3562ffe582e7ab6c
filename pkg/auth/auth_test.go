package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestSecretHashAndCheck(t *testing.T) {
	hash, err := HashSecret("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !CheckSecret("secret", hash) {
		t.Fatalf("secret should match")
	}
	if CheckSecret("wrong", hash) {
		t.Fatalf("secret should not match")
	}
}

func TestValidateServiceToken(t *testing.T) {
	if err := ValidateServiceToken("", "expected"); !errors.Is(err, ErrMissingServiceToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if err := ValidateServiceToken("bad", "expected"); !errors.Is(err, ErrInvalidServiceToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if err := ValidateServiceToken("anything", ""); err == nil {
		t.Fatalf("an unset expected token must reject everything")
	}
	if err := ValidateServiceToken("expected", "expected"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTGenerateValidate(t *testing.T) {
	secret := []byte("s3cr3t")
	company := 1
	token, err := GenerateJWT(Identity{UserID: "user1", TenantID: "econova", Role: RoleAdmin, CompanyID: &company}, secret, time.Hour)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("validate jwt: %v", err)
	}
	if claims.UserID != "user1" || claims.TenantID != "econova" || claims.Role != RoleAdmin {
		t.Fatalf("claims mismatch: %+v", claims.Identity)
	}
	if claims.CompanyID == nil || *claims.CompanyID != 1 {
		t.Fatalf("expected company pin to survive, got %v", claims.CompanyID)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) != time.Hour {
		t.Fatalf("expected 1h ttl")
	}
}

func signed(t *testing.T, claims *Claims, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestJWTValidationEdgeCases(t *testing.T) {
	id := Identity{UserID: "user1", TenantID: "econova", Role: RoleUser}
	tests := []struct {
		name       string
		setupToken func(t *testing.T) string
		secret     []byte
		errorType  error
	}{
		{
			name: "valid token with correct secret",
			setupToken: func(t *testing.T) string {
				token, _ := GenerateJWT(id, []byte("correct-secret"), 0)
				return token
			},
			secret: []byte("correct-secret"),
		},
		{
			name: "valid token with wrong secret",
			setupToken: func(t *testing.T) string {
				token, _ := GenerateJWT(id, []byte("correct-secret"), 0)
				return token
			},
			secret:    []byte("wrong-secret"),
			errorType: ErrInvalidJWT,
		},
		{
			name: "expired token",
			setupToken: func(t *testing.T) string {
				return signed(t, &Claims{
					Identity: id,
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
						IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
					},
				}, []byte("test-secret"))
			},
			secret:    []byte("test-secret"),
			errorType: ErrExpiredJWT,
		},
		{
			name: "token without tenant",
			setupToken: func(t *testing.T) string {
				return signed(t, &Claims{
					Identity: Identity{UserID: "user1"},
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				}, []byte("test-secret"))
			},
			secret:    []byte("test-secret"),
			errorType: ErrInvalidJWT,
		},
		{
			name:       "malformed token",
			setupToken: func(t *testing.T) string { return "not.a.valid.jwt.token" },
			secret:     []byte("test-secret"),
			errorType:  ErrInvalidJWT,
		},
		{
			name:       "empty token",
			setupToken: func(t *testing.T) string { return "" },
			secret:     []byte("test-secret"),
			errorType:  ErrInvalidJWT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateJWT(tt.setupToken(t), tt.secret)
			if tt.errorType == nil {
				if err != nil || claims == nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected error %v but got %v", tt.errorType, err)
			}
			if claims != nil {
				t.Fatalf("expected nil claims when error occurs")
			}
		})
	}
}

func TestJWTAlgorithmConfusionPrevention(t *testing.T) {
	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Identity: Identity{UserID: "user1", TenantID: "econova", Role: RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		},
	})
	noneTokenString, err := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to create none token: %v", err)
	}

	claims, err := ValidateJWT(noneTokenString, []byte("test-secret"))
	if err == nil || claims != nil {
		t.Fatalf("expected rejection of none algorithm token")
	}
	if !errors.Is(err, ErrInvalidJWT) && !strings.Contains(err.Error(), "unexpected signing method") {
		t.Fatalf("expected signing method or invalid JWT error but got: %v", err)
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	hash, err := HashSecret("nova_live_abc", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	company := 2
	v := NewAPIKeyVerifier([]APIKey{{
		Name:     "erp",
		Hash:     hash,
		Identity: Identity{UserID: "erp-bot", TenantID: "econova", Role: RoleService, CompanyID: &company},
	}}, time.Minute)

	id, err := v.Verify(context.Background(), "nova_live_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.TenantID != "econova" || id.CompanyID == nil || *id.CompanyID != 2 {
		t.Fatalf("unexpected identity %+v", id)
	}
	// Second lookup is served from the cache.
	if _, err := v.Verify(context.Background(), "nova_live_abc"); err != nil {
		t.Fatalf("unexpected error on cached lookup: %v", err)
	}
	if _, err := v.Verify(context.Background(), "nova_live_wrong"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}

	var nilVerifier *APIKeyVerifier
	if _, err := nilVerifier.Verify(context.Background(), "x"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("nil verifier must reject, got %v", err)
	}
}
