// Package httpapi is the JSON HTTP API over the session controller. The
// same router backs the local web server and the Lambda function.
package httpapi

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/fpang/mystic-studio/internal/metrics"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
)

// DownloadFilename is the attachment name of the recomposed image.
const DownloadFilename = "mystic-masterpiece.png"

// Server holds the handler dependencies.
type Server struct {
	ctrl           *session.Controller
	observer       metrics.Observer
	corsOrigin     string
	version        string
	metricsHandler http.Handler
	frontend       fs.FS
	originSecret   string
}

// Option configures the router.
type Option func(*Server)

// WithObserver records request metrics.
func WithObserver(o metrics.Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithCORSOrigin allows one browser origin ("*" for any). Without it only
// localhost origins are allowed.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		s.corsOrigin = origin
	}
}

// WithVersion is reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithFrontend serves the single-page UI from fsys at /.
func WithFrontend(fsys fs.FS) Option {
	return func(s *Server) {
		s.frontend = fsys
	}
}

// WithOriginVerify requires the x-origin-verify header to equal secret.
func WithOriginVerify(secret string) Option {
	return func(s *Server) {
		s.originSecret = secret
	}
}

// NewRouter builds the HTTP handler.
func NewRouter(ctrl *session.Controller, opts ...Option) http.Handler {
	s := &Server{ctrl: ctrl, observer: metrics.Nop{}, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogging)
	r.Use(withOriginVerify(s.originSecret))
	r.Use(withCORS(s.corsOrigin))
	r.Use(withMetrics(s.observer))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/image", s.handleUploadImage)
			r.Put("/prompt", s.handleSetPrompt)
			r.Post("/edit", s.handleSubmitEdit)
			r.Post("/reset", s.handleReset)
			r.Get("/original", s.handleOriginal)
			r.Get("/edited", s.handleEdited)
			r.Get("/download", s.handleDownload)
		})
		r.Get("/history", s.handleHistory)
	})

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	if s.frontend != nil {
		r.With(withSecurityHeaders).Get("/*", spaHandler(s.frontend))
	}

	return gzhttp.GzipHandler(r)
}

// spaHandler serves files from fsys, falling back to index.html for
// unknown paths.
func spaHandler(fsys fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(fsys))
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path != "/" {
			f, err := fsys.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	}
}
