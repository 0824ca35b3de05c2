package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cwrk-planet/watchparty/internal/auth"
	httpmw "github.com/cwrk-planet/watchparty/internal/transport/http/middleware"
	"github.com/cwrk-planet/watchparty/internal/transport/ws"
	"github.com/cwrk-planet/watchparty/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler        *Handler
	Resolver       auth.Resolver
	WS             *ws.Server
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httputil.HeaderRequestID, httpmw.HeaderUserID, httpmw.HeaderDisplayName},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "unavailable", err.Error())
				return
			}
		}
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	// WS endpoint: аутентификация по query, т.к. браузер не шлёт заголовки при апгрейде
	if d.WS != nil {
		r.Get("/ws/rooms/{code}", d.WS.HandleWS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Resolver))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", d.Handler.CreateRoom)
			rm.Get("/", d.Handler.ListRooms)

			rm.Route("/{code}", func(rr chi.Router) {
				rr.Use(httpmw.RoomLog)
				rr.Get("/", d.Handler.GetRoom)
				rr.Post("/end", d.Handler.EndRoom)
				rr.Post("/leave", d.Handler.LeaveRoom)
				rr.Post("/kick", d.Handler.Kick)
				rr.Get("/participants", d.Handler.GetParticipants)
				rr.Get("/sync", d.Handler.GetSync)
				rr.Get("/chat", d.Handler.GetChatHistory)
			})
		})
	})

	return r
}
