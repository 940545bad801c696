package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/auth"
)

const testKey = "test-secret-key-for-testing-only"

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleOperator, auth.RoleRider} {
		t.Run(string(role), func(t *testing.T) {
			token, expiresAt, err := svc.GenerateAccessToken("usr_42", role)
			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.True(t, expiresAt.After(time.Now()))

			p, err := svc.ValidateAccessToken(token)
			require.NoError(t, err)
			assert.Equal(t, "usr_42", p.Subject)
			assert.Equal(t, role, p.Role)
		})
	}
}

func TestJWTService_UnknownRoleNotIssued(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	_, _, err := svc.GenerateAccessToken("usr_42", "CONDUCTOR")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

func TestJWTService_UnknownRoleRejected(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "citytransit",
			Subject:   "usr_42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: "SUPERUSER",
	})
	signed, err := token.SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	svc1 := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-one"})
	token, _, err := svc1.GenerateAccessToken("usr_42", auth.RoleOperator)
	require.NoError(t, err)

	svc2 := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-two"})
	_, err = svc2.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	svc1 := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey, Issuer: "issuer-one"})
	token, _, err := svc1.GenerateAccessToken("usr_42", auth.RoleOperator)
	require.NoError(t, err)

	svc2 := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey, Issuer: "issuer-two"})
	_, err = svc2.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	issuer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testKey,
		Now:        func() time.Time { return issued },
	})
	token, _, err := issuer.GenerateAccessToken("usr_42", auth.RoleRider)
	require.NoError(t, err)

	later := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testKey,
		Now:        func() time.Time { return issued.Add(2 * time.Hour) },
	})
	_, err = later.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestPrincipal_HasRole(t *testing.T) {
	p := auth.Principal{Subject: "usr_1", Role: auth.RoleOperator}

	assert.True(t, p.HasRole(auth.RoleAdmin, auth.RoleOperator))
	assert.False(t, p.HasRole(auth.RoleAdmin))
	assert.False(t, auth.Principal{}.HasRole(auth.RoleRider))
}
