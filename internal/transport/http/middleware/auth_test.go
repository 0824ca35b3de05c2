package httpmw

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwrk-planet/watchparty/internal/auth"
	"github.com/cwrk-planet/watchparty/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthAndRoomLog_AttachAttrsOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := chi.NewRouter()
	r.Use(Auth(auth.TrustResolver{}))
	r.Route("/rooms/{code}", func(rr chi.Router) {
		rr.Use(RoomLog)
		rr.Get("/", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "u1", IdentityFromCtx(req.Context()).ID)
			logger.FromContext(req.Context()).Info("hit")
			w.WriteHeader(http.StatusNoContent)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/rooms/abcd0001/", nil)
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set(HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, `"room":"ABCD0001"`)
	assert.Contains(t, line, `"user":"u1"`)
	assert.Equal(t, 1, strings.Count(line, `"room":`))
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	h := Auth(auth.TrustResolver{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
