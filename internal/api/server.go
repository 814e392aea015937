// Package api exposes the triage operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/rfq-cli/internal/triage"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router middleware.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	CORSOrigins      []string
	BatchConcurrency int
}

// Server holds the handlers' dependencies.
type Server struct {
	svc    *triage.Service
	health Pinger
	opts   Options
}

// NewServer creates a Server. health may be nil.
func NewServer(svc *triage.Service, health Pinger, opts Options) *Server {
	return &Server{svc: svc, health: health, opts: opts}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.opts.RateLimitRPS > 0 {
			r.Use(rateLimit(s.opts.RateLimitRPS, s.opts.RateLimitBurst))
		}

		r.Route("/rfqs", func(r chi.Router) {
			r.Post("/", s.handleCreateRFQ)
			r.Get("/", s.handleListRFQs)
			r.Post("/evaluate", s.handleEvaluateMany)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRFQ)
				r.Patch("/", s.handleSetAttributes)
				r.Post("/evaluate", s.handleEvaluate)
				r.Put("/decision", s.handleRecordDecision)
				r.Get("/events", s.handleListEvents)
			})
		})

		r.Post("/oem-occurrences", s.handleTrackOEM)
		r.Get("/analytics/business-case", s.handleBusinessCase)
		r.Get("/analytics/rule-triggers", s.handleRuleTriggers)
		r.Get("/rules", s.handleRules)
		r.Get("/settings/auto-decline", s.handleGetAutoDecline)
		r.Put("/settings/auto-decline", s.handleSetAutoDecline)
	})

	return r
}

// rateLimit rejects requests beyond rps with 429.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
