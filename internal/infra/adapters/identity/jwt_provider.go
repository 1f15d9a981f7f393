package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
)

var _ adapter.IdentityProvider = (*JWTProvider)(nil)

// UserClaims are the claims the identity provider signs for a shopper.
type UserClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 tokens issued by the external auth provider.
type JWTProvider struct {
	secret     []byte
	cookieName string
}

func NewJWTProvider(secret, cookieName string) *JWTProvider {
	if cookieName == "" {
		cookieName = "auth_token"
	}
	return &JWTProvider{secret: []byte(secret), cookieName: cookieName}
}

// Verify parses rawToken and returns the identity it carries.
func (p *JWTProvider) Verify(_ context.Context, rawToken string) (*model.Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return &model.Identity{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Resolve reads the token from the Authorization header or the auth cookie.
// Missing or invalid tokens yield nil: the visitor is simply anonymous.
func (p *JWTProvider) Resolve(r *http.Request) *model.Identity {
	tok := TokenFromRequest(r, p.cookieName)
	if tok == "" {
		return nil
	}
	id, err := p.Verify(r.Context(), tok)
	if err != nil {
		return nil
	}
	return id
}

// Issue signs a token for id. Used by dev mode and tests in place of the
// external provider.
func (p *JWTProvider) Issue(id model.Identity, ttl time.Duration) (string, error) {
	if id.ID == "" {
		return "", errors.New("identity without id")
	}
	now := time.Now()
	claims := UserClaims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   id.ID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// TokenFromRequest returns the bearer token, falling back to cookieName.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return strings.TrimSpace(hdr[7:])
		}
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
