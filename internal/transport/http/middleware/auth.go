package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/watchparty/internal/auth"
	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/pkg/httputil"
	"github.com/cwrk-planet/watchparty/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

const (
	HeaderUserID      = "X-User-ID"
	HeaderDisplayName = "X-Display-Name"
)

// Auth требует Bearer-токен и превращает его в domain.Identity через resolver.
func Auth(resolver auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			id, err := resolver.ResolveIdentity(r.Context(), auth.Credentials{
				Token:       token,
				UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
				DisplayName: r.Header.Get(HeaderDisplayName),
			})
			if err != nil || id.Anonymous() {
				logger.FromContext(r.Context()).Debug("auth rejected", "err", err)
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			ctx = logger.WithContext(ctx, "user", id.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoomLog добавляет код комнаты из пути в логгер запроса.
func RoomLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := domain.NormalizeCode(chi.URLParam(r, "code"))
		if code == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), "room", code)))
	})
}

func bearer(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func IdentityFromCtx(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id
}
