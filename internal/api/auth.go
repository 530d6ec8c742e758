package api

import (
	"errors"
	"fmt"
	"time"

	"TaxPool/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "taxpool"

// Authenticator issues and verifies HS256 bearer tokens. The token subject is
// the account the caller acts as.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator builds an authenticator from a shared signing secret.
func NewAuthenticator(secret []byte, ttl time.Duration) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Authenticator{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token that lets the bearer act as account until it expires.
func (a *Authenticator) Issue(account model.Address) (string, error) {
	if account == "" {
		return "", errors.New("account is required")
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   string(account),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	return token.SignedString(a.secret)
}

// Parse verifies raw and returns the account it was issued for.
func (a *Authenticator) Parse(raw string) (model.Address, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return model.Address(claims.Subject), nil
}
