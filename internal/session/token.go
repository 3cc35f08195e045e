package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Sung-star/storefront-checkout/internal/backend"
)

// Claims are the fields the backend puts in its access tokens.
type Claims struct {
	UserID   backend.ID `json:"userId,omitempty"`
	Username string     `json:"username,omitempty"`
	FullName string     `json:"fullName,omitempty"`
	Name     string     `json:"name,omitempty"`
	Email    string     `json:"email,omitempty"`
	Role     string     `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Profile builds a profile from the token, using sub as the username when
// no username claim is present.
func (c *Claims) Profile() *Profile {
	p := &Profile{
		ID:       c.UserID,
		Username: c.Username,
		FullName: c.FullName,
		Name:     c.Name,
		Email:    c.Email,
		Role:     c.Role,
	}
	if p.Username == "" {
		p.Username = c.Subject
	}
	if *p == (Profile{}) {
		return nil
	}
	return p
}

// TokenParser reads backend tokens. With a secret it verifies HS256
// signatures and expiry; without one it only decodes the claims.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// Parse returns the claims of token. Opaque (non-JWT) tokens are accepted
// with nil claims when no secret is configured.
func (p *TokenParser) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	if len(p.secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, nil
		}
		return claims, nil
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("parse token: invalid")
	}
	return claims, nil
}
