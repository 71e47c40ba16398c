package www

import (
	"net/http"

	"pickpoint/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	sessions *sessionStore
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", h.apiHealth)

	// SSE (no auth — shop floor)
	r.Get("/events", h.eventHub.HandleSSE)

	// Login/logout
	r.Post("/api/login", h.apiLogin)
	r.Post("/api/logout", h.apiLogout)

	// API endpoints (mixed: some public for shop floor, some admin-only)
	r.Route("/api", func(r chi.Router) {
		// Public API (shop floor actions)
		r.Get("/status", h.apiStatus)
		r.Get("/session", h.apiSession)
		r.Post("/session/batch", h.apiStartBatch)
		r.Post("/session/start", h.apiStartTargets)
		r.Post("/session/pause", h.apiPause)
		r.Post("/session/resume", h.apiResume)
		r.Post("/session/abort", h.apiAbort)
		r.Get("/sessions", h.apiListSessions)
		r.Get("/sessions/{id}", h.apiGetSession)
		r.Get("/commands", h.apiListCommands)
		r.Post("/sequence/preview", h.apiSequencePreview)
		r.Post("/robot/stop", h.apiRobotStop)
		r.Post("/robot/status", h.apiRobotQueryStatus)
		r.Get("/cells", h.apiListCells)

		// Admin API (manual jog + config mutations)
		r.Group(func(r chi.Router) {
			r.Use(h.adminMiddleware)

			r.Post("/robot/echo", h.apiRobotEcho)
			r.Post("/robot/command", h.apiRobotCommand)
			r.Post("/robot/connect", h.apiRobotConnect)
			r.Post("/robot/disconnect", h.apiRobotDisconnect)
			r.Get("/config", h.apiGetConfig)
			r.Post("/config/password", h.apiChangePassword)
		})
	})

	return r, func() {
		h.eventHub.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
