package jwt

import (
	"context"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

const RoleAdmin = "admin"

// Claims are the session claims issued by the identity front end.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	gojwt.RegisteredClaims
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "jwt verifier", fmt.Errorf("secret is required"))
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (*domain.Session, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, gojwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify session token", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify session token", fmt.Errorf("missing subject"))
	}

	session := &domain.Session{UserID: claims.Subject, Name: claims.Name}
	for _, role := range claims.Roles {
		if role == RoleAdmin {
			session.IsAdmin = true
		}
	}
	return session, nil
}

// Issue signs a token for userID. Used by tooling and tests.
func (v *Verifier) Issue(userID, name string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  name,
		Roles: roles,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = gojwt.ClaimStrings{v.audience}
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}
