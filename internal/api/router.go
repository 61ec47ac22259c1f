package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Embedded devices speak the hello/set/get protocol here.
	r.Get(s.devicePath(), s.handleEmbedded)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/engine", s.handleEngine)
		r.Get("/activity", s.handleListActivity)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/attributes/{attr}", s.handleGetAttribute)
				r.Put("/attributes/{attr}", s.handleSetAttribute)
				r.Post("/actions/{action}", s.handleInvokeAction)
			})
		})

		r.Get("/ws", s.handleObserverWS)
	})

	return r
}

func (s *Server) devicePath() string {
	if s.wsCfg.DevicePath == "" {
		return "/embedded"
	}
	return s.wsCfg.DevicePath
}
