package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/config"
	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/server"
)

// PeykApp is the HTTP surface: auth, chat and message resources, the
// WebSocket upgrade, health and metrics. Real-time state lives in the
// messenger server; this layer authenticates and hands off.
type PeykApp struct {
	log            zerolog.Logger
	db             database.Repository
	mux            *http.Server
	ms             *server.MessengerServer
	signingKey     []byte
	allowedOrigins []string
	metrics        http.Handler
}

func NewPeykApp(logger zerolog.Logger, ms *server.MessengerServer, db database.Repository,
	cfg *config.Config, metrics http.Handler) *PeykApp {
	a := &PeykApp{
		log:            logger,
		db:             db,
		ms:             ms,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		metrics:        metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", a.createAccount)
	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.Handle("GET /api/auth/session", a.authMiddleware(a.session))
	mux.Handle("GET /api/auth/logout", a.authMiddleware(a.logout))
	mux.Handle("POST /api/chats", a.authMiddleware(a.createChat))
	mux.Handle("POST /api/communities", a.authMiddleware(a.createCommunity))
	mux.Handle("POST /api/communities/join", a.authMiddleware(a.joinCommunity))
	mux.Handle("POST /api/communities/leave", a.authMiddleware(a.leaveCommunity))
	mux.Handle("GET /api/messages", a.authMiddleware(a.getMessages))
	mux.Handle("POST /api/messages", a.authMiddleware(a.postMessage))
	mux.Handle("GET /ws", a.authMiddleware(a.serveWs))
	mux.HandleFunc("GET /healthz", a.healthz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = a.errorHandler(h)

	a.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}
	return a
}

func (a *PeykApp) Start() error {
	a.log.Info().Str("addr", a.mux.Addr).Msg("starting http server")
	return a.mux.ListenAndServe()
}

func (a *PeykApp) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("shutting down http server")
	if err := a.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (a *PeykApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("write response")
	}
}

func (a *PeykApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				a.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				a.writeJson(w, errResp.StatusCode, errResp)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (a *PeykApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(tokenCookieKey)
		if err != nil {
			errResp := NewUnauthorizedError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := a.extractUserIdFromToken(tokenCookie.Value)
		if err != nil {
			a.log.Debug().Err(err).Msg("reject token")
			errResp := NewUnauthorizedError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
