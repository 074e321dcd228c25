package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs the HS256 tokens handed out by the built-in login.
type Issuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(key []byte, ttl time.Duration, issuer string) *Issuer {
	return &Issuer{key: key, ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue returns a token whose subject is userID.
func (i *Issuer) Issue(userID, role, email string) (string, time.Time, error) {
	if len(i.key) == 0 {
		return "", time.Time{}, fmt.Errorf("token signing key is not configured")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:  role,
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
