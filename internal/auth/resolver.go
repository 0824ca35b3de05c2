// Package auth проверяет учётные данные, выданные внешним сервисом авторизации, и превращает их
// в domain.Identity. Выпуском токенов этот сервис не занимается.
package auth

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/watchparty/internal/domain"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrTokenExpired    = errors.New("token expired or not valid yet")
	ErrInvalidSubject  = errors.New("invalid subject")
)

type Credentials struct {
	Token       string
	UserID      string // заявленный клиентом id
	DisplayName string
}

// Resolver возвращает Identity либо ErrUnauthenticated для анонимного клиента.
type Resolver interface {
	ResolveIdentity(ctx context.Context, creds Credentials) (domain.Identity, error)
}

// TrustResolver доверяет заявленному user_id при наличии любого bearer-токена.
// Годится только за шлюзом, который сам проверил токен.
type TrustResolver struct{}

func (TrustResolver) ResolveIdentity(_ context.Context, creds Credentials) (domain.Identity, error) {
	if strings.TrimSpace(creds.Token) == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	id := strings.TrimSpace(creds.UserID)
	if id == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	return domain.Identity{ID: id, DisplayName: displayNameOr(creds.DisplayName, id)}, nil
}

const maxDisplayName = 64

func displayNameOr(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if utf8.RuneCountInString(name) > maxDisplayName {
		name = strings.TrimSpace(string([]rune(name)[:maxDisplayName]))
	}
	return name
}
