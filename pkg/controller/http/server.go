package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/usecase/tutor"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
)

const (
	DefaultGenerateLimit = 5
	DefaultChatLimit     = 50

	maxBodySize = 1 << 20
)

// Generator produces a transformation for a limiting phrase
type Generator interface {
	Generate(ctx context.Context, phrase string) (*model.Transformation, error)
}

// Responder produces the tutor reply for one conversational turn
type Responder interface {
	Respond(ctx context.Context, input tutor.RespondInput) (string, error)
}

// QuotaTracker consumes and inspects per-caller allowances
type QuotaTracker interface {
	Check(ctx context.Context, key model.QuotaKey, limit int) (*model.QuotaDecision, error)
	Peek(ctx context.Context, key model.QuotaKey, limit int) (*model.QuotaDecision, error)
}

// Server serves the quota-gated AI endpoints
type Server struct {
	mux       *http.ServeMux
	tracker   QuotaTracker
	auth      Authenticator
	generator Generator
	responder Responder
	limits    map[model.Feature]int
}

type Option func(*Server)

// WithGenerator enables POST /generate. Without it the endpoint answers 500.
func WithGenerator(g Generator) Option {
	return func(s *Server) {
		s.generator = g
	}
}

// WithResponder enables POST /chat. Without it the endpoint answers 500.
func WithResponder(r Responder) Option {
	return func(s *Server) {
		s.responder = r
	}
}

// WithGenerateLimit sets the daily allowance of POST /generate
func WithGenerateLimit(n int) Option {
	return func(s *Server) {
		s.limits[model.FeatureGenerate] = n
	}
}

// WithChatLimit sets the daily allowance of POST /chat
func WithChatLimit(n int) Option {
	return func(s *Server) {
		s.limits[model.FeatureChat] = n
	}
}

// New creates a Server. tracker and auth are required.
func New(tracker QuotaTracker, auth Authenticator, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		tracker: tracker,
		auth:    auth,
		limits: map[model.Feature]int{
			model.FeatureGenerate: DefaultGenerateLimit,
			model.FeatureChat:     DefaultChatLimit,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /generate", s.authenticated(s.handleGenerate))
	s.mux.Handle("POST /chat", s.authenticated(s.handleChat))
	s.mux.Handle("GET /quota", s.authenticated(s.handleQuota))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := logging.From(r.Context()).With(
		"request_id", uuid.NewString(),
		"method", r.Method,
		"path", r.URL.Path,
	)
	ctx := logging.With(r.Context(), logger)

	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rw, r.WithContext(ctx))

	logger.Info("request handled",
		"status", rw.status,
		"duration", time.Since(start))
}

// authenticated runs next only for requests that pass the Authenticator
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		ctx := withUser(r.Context(), user)
		ctx = logging.With(ctx, logging.From(ctx).With("user", user))
		next(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (x *statusRecorder) WriteHeader(status int) {
	x.status = status
	x.ResponseWriter.WriteHeader(status)
}
