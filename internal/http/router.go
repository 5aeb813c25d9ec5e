package http

import (
	"net/http"
	"time"

	"partymaker/internal/config"
	"partymaker/internal/handlers"
	"partymaker/internal/httpjson"
	"partymaker/internal/middleware"
	"partymaker/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Cfg  config.Config
	Tree store.Tree
	// Verifier is required when Cfg.RequireAuth is set.
	Verifier middleware.TokenVerifier
	// Signer enables the upload endpoint when non-nil.
	Signer handlers.URLSigner
	// Registry backs /metrics; nil disables metrics.
	Registry *prometheus.Registry
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	var reg prometheus.Registerer
	if d.Registry != nil {
		reg = d.Registry
	}

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLog(reg))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})
	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	// Protected routes
	r.Group(func(pr chi.Router) {
		if d.Cfg.RequireAuth {
			pr.Use(middleware.WithAuth(d.Verifier))
		}

		proxy := handlers.NewFirebaseProxy(d.Tree)
		pr.Route("/api/firebase", proxy.Routes)
		pr.Get("/api/me", proxy.Me)

		uploads := handlers.NewUploads(d.Signer)
		pr.Post("/api/uploads/group-image", uploads.CreateGroupImageURL)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "not found")
	})
	return r
}
