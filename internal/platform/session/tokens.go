package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the signed slot token.
const CookieName = "ins_slot"

const tokenIssuer = "ins-admin"

// ErrInvalidToken is returned for tokens that fail signature or shape checks.
var ErrInvalidToken = errors.New("session: invalid slot token")

// Tokens issues and verifies slot tokens: HS256 JWTs whose subject is the
// slot id. Like sessions, they carry no expiry.
type Tokens struct {
	key []byte
}

func NewTokens(signingKey []byte) *Tokens {
	return &Tokens{key: signingKey}
}

// NewSlotID returns a fresh random slot identifier.
func NewSlotID() string {
	return uuid.NewString()
}

// Issue signs a token naming slotID.
func (t *Tokens) Issue(slotID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  slotID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("session: sign slot token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the slot id it names.
func (t *Tokens) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
