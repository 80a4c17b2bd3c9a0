package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/carbuddy/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testUser() *models.User {
	return &models.User{
		ID:    primitive.NewObjectID(),
		Email: "driver@example.com",
		Role:  models.RoleOwner,
	}
}

func TestNewService(t *testing.T) {
	service := NewService("secret", time.Hour)
	assert.Equal(t, []byte("secret"), service.jwtSecret)
	assert.Equal(t, time.Hour, service.tokenExp)

	service = NewService("secret", 0)
	assert.Equal(t, 24*time.Hour, service.tokenExp)
}

func TestService_GenerateAndValidateToken(t *testing.T) {
	service := NewService("secret", time.Hour)
	user := testUser()

	token, err := service.GenerateToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, models.RoleOwner, claims.Role)
	assert.Greater(t, claims.Exp, time.Now().Unix())

	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
}

func TestService_ValidateToken_Rejects(t *testing.T) {
	service := NewService("secret", time.Hour)
	token, err := service.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = service.ValidateToken("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)

	_, err = NewService("other", time.Hour).ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	service := NewService("secret", time.Hour)
	service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := service.GenerateToken(testUser())
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestService_ValidateToken_BadClaims(t *testing.T) {
	service := NewService("secret", time.Hour)
	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := map[string]string{
		"missing subject": sign(jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"iss": issuer, "role": "owner", "exp": exp}),
		"unknown role":    sign(jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"iss": issuer, "sub": "abc", "role": "mechanic", "exp": exp}),
		"missing exp":     sign(jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"iss": issuer, "sub": "abc", "role": "owner"}),
		"wrong issuer":    sign(jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"iss": "someone", "sub": "abc", "role": "owner", "exp": exp}),
		"other hmac":      sign(jwt.SigningMethodHS512, []byte("secret"), jwt.MapClaims{"iss": issuer, "sub": "abc", "role": "owner", "exp": exp}),
		"unsigned":        sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"iss": issuer, "sub": "abc", "role": "owner", "exp": exp}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := service.ValidateToken(token)
			assert.Equal(t, ErrInvalidToken, err)
		})
	}
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := NewService("secret", time.Hour)

	extracted, err := service.ExtractTokenFromHeader("Bearer valid-token")
	assert.NoError(t, err)
	assert.Equal(t, "valid-token", extracted)

	for _, header := range []string{"", "InvalidFormat", "Bearer ", "Basic abc", "Bearer a b"} {
		_, err = service.ExtractTokenFromHeader(header)
		assert.Equal(t, ErrInvalidToken, err, header)
	}
}
