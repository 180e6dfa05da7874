package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Identity is the caller as asserted by a verified access token.
type Identity struct {
	UserID string
	Email  string
}

// TokenParser verifies HMAC-signed access tokens issued by the account site.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenParser{}
	}
	return &TokenParser{secret: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func (p *TokenParser) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if p == nil || p.secret == nil {
		return nil, ErrNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// Identify validates an access token and extracts the caller.
func (p *TokenParser) Identify(tokenStr string) (*Identity, error) {
	claims, err := p.ParseAndValidateToken(tokenStr, "access")
	if err != nil {
		return nil, err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	return &Identity{UserID: sub, Email: email}, nil
}

// IssueToken signs an access token. Used by tooling and tests; the storefront
// issues its own tokens with the same secret.
func (p *TokenParser) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	if p == nil || p.secret == nil {
		return "", ErrNotConfigured
	}
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"typ":   "access",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
