package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/yukawat/storyvote/internal/config"
	"github.com/yukawat/storyvote/internal/history"
	"github.com/yukawat/storyvote/internal/session"
)

// API exposes the bot's state over HTTP: a read-only status surface for
// dashboards plus a JWT-protected admin endpoint to force-stop a session.
type API struct {
	router    *mux.Router
	coord     *session.Coordinator
	store     *history.Store
	config    *config.Config
	jwtSecret []byte
}

// New builds the API. store may be nil when no database is configured; the
// sessions endpoint then reports history as unavailable.
func New(cfg *config.Config, coord *session.Coordinator, store *history.Store) *API {
	api := &API{
		router:    mux.NewRouter(),
		coord:     coord,
		store:     store,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("POST")

	// Public endpoints
	a.router.HandleFunc("/api/status", a.handleStatus).Methods("GET")
	a.router.HandleFunc("/api/replay", a.handleReplay).Methods("GET")
	a.router.HandleFunc("/api/sessions", a.handleSessions).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api/admin").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/session/stop", a.handleStopSession).Methods("POST")
}

func (a *API) Start() error {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	log.Printf("API server listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, handler)
}
