package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accountCookieIssuer = "meal-delivery"

var ErrInvalidAccountCookie = errors.New("invalid account cookie")

// RandomToken returns n random bytes hex-encoded.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken is the at-rest form of a bearer token.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

type accountClaims struct {
	jwt.RegisteredClaims
}

// SignAccountCookie binds the remember-me account identifier to the server
// secret so the cookie cannot be pointed at another account.
func SignAccountCookie(secret string, accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    accountCookieIssuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign account cookie: %w", err)
	}
	return signed, nil
}

func ParseAccountCookie(secret string, value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &accountClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(accountCookieIssuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAccountCookie, err)
	}
	claims, ok := token.Claims.(*accountClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidAccountCookie
	}
	return claims.Subject, nil
}
