package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// adminTokenTTL keeps admin sessions short; re-login is cheap.
const adminTokenTTL = 15 * time.Minute

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAdminToken creates a short-lived HS256 admin token.
func GenerateAdminToken(username string, role Role, secret []byte) (string, int64, error) {
	expiresAt := time.Now().Add(adminTokenTTL)
	claims := AdminClaims{
		Username: username,
		Role:     role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

// ValidateAdminToken verifies an admin token and returns its claims.
func ValidateAdminToken(tokenString string, secret []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || !Role(claims.Role).IsValid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
