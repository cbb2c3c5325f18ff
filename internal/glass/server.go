// Package glass serves the HTTP API used by the wall panels: the disarm
// challenge/response, delayed arming, wake light dismissal and flags.
package glass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/challenge"
	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/flags"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/occupancy"
	"github.com/dokzlo13/hubd/internal/security"
)

var (
	// ErrUnknownBridge means the bridge id is not configured.
	ErrUnknownBridge = errors.New("unknown bridge")
	// ErrMisconfiguredBridge means the bridge has no PIN or PSK.
	ErrMisconfiguredBridge = errors.New("bridge missing pin or psk")
)

// Dismisser stops the wake light for today.
type Dismisser interface {
	Dismiss(ctx context.Context, source string) (bool, error)
}

// RoomLister reports per-room occupancy.
type RoomLister interface {
	Statuses() []occupancy.Status
}

// Deps are the collaborators behind the API. Arm, Wake and Rooms are optional.
type Deps struct {
	Bridges   map[string]config.GlassBridge
	Authority *challenge.Authority
	Security  *security.Store
	Arm       *security.ArmScheduler
	Ledger    *ledger.Ledger
	Flags     *flags.Store
	Wake      Dismisser
	Rooms     RoomLister
}

// Server is the panel-facing HTTP server.
type Server struct {
	addr       string
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	now        func() time.Time
}

// NewServer creates a server listening on host:port.
func NewServer(host string, port int, deps Deps) *Server {
	s := &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		deps: deps,
		now:  time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/glass", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Put("/arm", s.handleArm)
		r.Get("/{bridgeId}/challenge", s.handleChallenge)
		r.Post("/{bridgeId}/disarm", s.handleDisarm)
	})

	r.Post("/wake/dismiss", s.handleWakeDismiss)

	r.Route("/flags", func(r chi.Router) {
		r.Get("/", s.handleListFlags)
		r.Put("/{key}", s.handleSetFlag)
	})

	r.Get("/rooms", s.handleRooms)

	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Int("bridges", len(s.deps.Bridges)).Msg("Starting glass API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Glass API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
