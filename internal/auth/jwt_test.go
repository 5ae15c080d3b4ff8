package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndParseJWT(t *testing.T) {
	id := uuid.New()
	token, err := GenerateJWT("secret", id, "freelancer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != id || claims.Role != "freelancer" || claims.Issuer != Issuer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseJWTRejects(t *testing.T) {
	id := uuid.New()
	valid, _ := GenerateJWT("secret", id, "client", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredStr, _ := expired.SignedString([]byte("secret"))

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noUserStr, _ := noUser.SignedString([]byte("secret"))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: id})
	noExpStr, _ := noExp.SignedString([]byte("secret"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"expired", "secret", expiredStr},
		{"missing user", "secret", noUserStr},
		{"missing expiry", "secret", noExpStr},
		{"garbage", "secret", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := ParseJWT("secret", noUserStr); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("missing user error = %v, want ErrInvalidToken", err)
	}
}
