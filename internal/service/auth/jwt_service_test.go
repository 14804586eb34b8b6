package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/formrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedService(t *testing.T, secret string, at time.Time) *hmacJWTService {
	t.Helper()
	svc, err := newHMACJWTService(secret, func() time.Time { return at })
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_RejectsShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short"})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()
	fixedTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := fixedService(t, testSecret, fixedTime)

	token, err := svc.GenerateToken(context.Background(), "planner", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "planner", claims.Agent)
	assert.Equal(t, TokenTypeProducer, claims.TokenType)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), "", time.Hour)
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := fixedService(t, testSecret, issuedAt)
	valid, err := issuer.GenerateToken(context.Background(), "planner", time.Hour)
	require.NoError(t, err)

	signed := func(claims jwtCustomClaims, method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	wrongType := signed(jwtCustomClaims{
		Agent:     "planner",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(testSecret))
	noAgent := signed(jwtCustomClaims{
		TokenType: TokenTypeProducer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(testSecret))
	noExpiry := signed(jwtCustomClaims{Agent: "planner", TokenType: TokenTypeProducer},
		jwt.SigningMethodHS256, []byte(testSecret))
	unsigned := signed(jwtCustomClaims{Agent: "planner", TokenType: TokenTypeProducer},
		jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		secret  string
		at      time.Time
		wantErr error
	}{
		{"valid", valid, testSecret, issuedAt.Add(30 * time.Minute), nil},
		{"within clock skew", valid, testSecret, issuedAt.Add(time.Hour + time.Minute), nil},
		{"expired", valid, testSecret, issuedAt.Add(2 * time.Hour), ErrExpiredToken},
		{"not yet valid", valid, testSecret, issuedAt.Add(-time.Hour), ErrTokenNotYetValid},
		{"wrong secret", valid, "wrong-secret-that-is-long-enough-for-testing", issuedAt, ErrInvalidToken},
		{"malformed", "not.a.jwt", testSecret, issuedAt, ErrInvalidToken},
		{"empty", "", testSecret, issuedAt, ErrMissingToken},
		{"wrong type", wrongType, testSecret, issuedAt, ErrWrongTokenType},
		{"missing agent", noAgent, testSecret, issuedAt, ErrInvalidToken},
		{"missing expiry", noExpiry, testSecret, issuedAt, ErrInvalidToken},
		{"alg none", unsigned, testSecret, issuedAt, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := fixedService(t, tt.secret, tt.at)
			claims, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "planner", claims.Agent)
		})
	}
}
