package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facechain/internal/web/handlers"
	"github.com/kozaktomas/facechain/internal/web/middleware"
	"github.com/kozaktomas/facechain/internal/web/static"
)

func (s *Server) setupRoutes() {
	camera := handlers.NewCamera(s.deps.NewSource)

	authHandler := handlers.NewAuthHandler(s.deps.Client, s.sessionManager)
	modelsHandler := handlers.NewModelsHandler(s.deps.Loader)
	facesHandler := handlers.NewFacesHandler(s.deps.Store, s.deps.Client)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Detector, s.deps.Store, s.deps.Style)
	s.live = handlers.NewLiveHandler(camera, s.deps.Detector, s.deps.Store, s.events, s.deps.Style, s.deps.CaptureOptions...)
	s.register = handlers.NewRegisterHandler(camera, s.deps.Detector, s.deps.Client, s.deps.Store, s.events, s.deps.Style, s.deps.CaptureOptions...)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)
		r.Get("/models/status", modelsHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Stored faces
			r.Get("/faces", facesHandler.List)
			r.Post("/faces/refresh", facesHandler.Refresh)
			r.Delete("/faces/{id}", facesHandler.Delete)

			// Recognition
			r.Post("/recognize/photo", recognizeHandler.Photo)

			// Live camera
			r.Get("/live", s.live.Status)
			r.Post("/live/start", s.live.Start)
			r.Post("/live/stop", s.live.Stop)
			r.Post("/live/detection", s.live.Detection)
			r.Post("/live/display", s.live.Display)
			r.Get("/live/events", s.live.Events)
			r.Get("/live/overlay.png", s.live.Overlay)

			// Registration
			r.Get("/register", s.register.Status)
			r.Post("/register/start", s.register.Start)
			r.Get("/register/preview.png", s.register.Preview)
			r.Post("/register/submit", s.register.Submit)
			r.Delete("/register", s.register.Cancel)
		})
	})

	s.router.Get("/*", s.serveUI)
}

// serveUI serves the embedded kiosk page and its assets
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err != nil {
		// Unknown paths fall back to the page itself
		f, err = fs.Open("/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		path = "/index.html"
	}
	defer f.Close()

	if stat, err := f.Stat(); err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", static.ContentType(path))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
