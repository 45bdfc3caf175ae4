package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"diary/internal/auth"
	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/http/handler"
	mw "diary/internal/http/middleware"
	"diary/internal/validation"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	DB        *gorm.DB
	JWT       *auth.JWT
	Validator *validation.Validator
	Notes     *diary.NoteStore
	Tags      *diary.TagStore
	Limiter   mw.Limiter
	Log       *slog.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			d.Log.Error("health check", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	limited := func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(mw.RateLimit(d.Limiter, d.Log))
		}
	}

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Validator: d.Validator, Log: d.Log}
	r.Group(func(r chi.Router) {
		limited(r)
		r.Post("/auth/register", ah.Register)
		r.Post("/auth/login", ah.Login)
	})

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	notes := &handler.NoteHandler{Notes: d.Notes, Log: d.Log}
	r.Route("/notes", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))
		limited(r)

		r.Get("/", notes.List)
		r.Post("/", notes.Create)
		r.Get("/{id}", notes.Get)
		r.Put("/{id}", notes.Replace)
		r.Patch("/{id}", notes.Patch)
		r.Delete("/{id}", notes.Delete)
	})

	tags := &handler.TagHandler{Tags: d.Tags, Log: d.Log}
	r.Route("/tags", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))
		limited(r)

		r.Get("/", tags.List)
		r.Post("/", tags.Create)
		r.Get("/{id}", tags.Get)
		r.Put("/{id}", tags.Rename)
		r.Patch("/{id}", tags.Rename)
		r.Delete("/{id}", tags.Delete)
	})

	return r
}
