package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/golang-jwt/jwt"
)

// AccessClaims совпадают с тем, что подписывает сервис авторизации (RS256).
type AccessClaims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

type JWTResolver struct {
	public    *rsa.PublicKey
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewJWTResolver(public *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *JWTResolver {
	return &JWTResolver{
		public:    public,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

func (r *JWTResolver) ResolveIdentity(_ context.Context, creds Credentials) (domain.Identity, error) {
	token := strings.TrimSpace(creds.Token)
	if token == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	claims, err := r.ParseAndValidate(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, ErrInvalidSubject)
	}
	// заявленный user_id, если передан, обязан совпадать с sub
	if id := strings.TrimSpace(creds.UserID); id != "" && id != claims.Subject {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, ErrInvalidSubject)
	}

	name := claims.Name
	if name == "" {
		name = creds.DisplayName
	}
	return domain.Identity{ID: claims.Subject, DisplayName: displayNameOr(name, claims.Subject)}, nil
}

func (r *JWTResolver) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	// временные клеймы проверяем сами, с допуском clockSkew
	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, ErrInvalidToken
		}
		return r.public, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.VerifyIssuer(r.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if r.audience != "" && !claims.VerifyAudience(r.audience, true) {
		return nil, ErrInvalidAudience
	}

	now := r.now()
	nbf := time.Unix(claims.NotBefore, 0).Add(-r.clockSkew)
	exp := time.Unix(claims.ExpiresAt, 0).Add(r.clockSkew)
	if claims.ExpiresAt == 0 || now.Before(nbf) || now.After(exp) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
