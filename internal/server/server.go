// Package server exposes the duel orchestrator over Socket.IO and a small REST surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"

	"github.com/biswa/coduel-signal/internal/handlers"
	"github.com/biswa/coduel-signal/internal/models"
	"github.com/biswa/coduel-signal/internal/perf"
	"github.com/biswa/coduel-signal/internal/poller"
	"github.com/biswa/coduel-signal/internal/results"
)

type Options struct {
	Port            int
	CORSOrigin      string
	PollInterval    time.Duration
	PollAttempts    int
	Tolerance       float64
	ShutdownTimeout time.Duration
}

type Server struct {
	opts       Options
	logger     zerolog.Logger
	httpServer *http.Server
	socketIO   *socket.Server
	transport  http.Handler
	emitter    *socketEmitter
	rooms      *models.Registry
	poller     *poller.Poller
	handler    *handlers.Handler
	router     *mux.Router

	stopOnce sync.Once
	stopErr  error
}

// New wires the registry, poller and orchestrator around store. Nothing listens until Serve.
func New(opts Options, store results.Store, logger zerolog.Logger) *Server {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	sockOpts := socket.DefaultServerOptions()
	sockOpts.SetCors(&types.Cors{
		Origin:      opts.CORSOrigin,
		Credentials: true,
	})
	sockOpts.SetAllowEIO3(true)
	socketIO := socket.NewServer(nil, sockOpts)

	rooms := models.NewRegistry(context.Background())
	serverLogger := logger.With().Str("component", "server").Logger()
	emitter := newSocketEmitter(socketIO, serverLogger)
	p := poller.New(store, nil, opts.PollInterval, opts.PollAttempts, logger)
	handler := handlers.New(rooms, emitter, p, perf.NewComparator(opts.Tolerance), logger)
	p.SetTarget(handler)

	s := &Server{
		opts:      opts,
		logger:    serverLogger,
		socketIO:  socketIO,
		transport: socketIO.ServeHandler(sockOpts),
		emitter:   emitter,
		rooms:     rooms,
		poller:    p,
		handler:   handler,
	}
	s.setupSocketIO()
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving both the REST routes and the Socket.IO transport.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.corsMiddleware)
	router.PathPrefix("/socket.io/").Handler(s.transport)
	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", s.createRoom).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/rooms/{code}", s.getRoom).Methods(http.MethodGet)
	return router
}

// Serve listens until ctx is cancelled, then shuts everything down.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msgf("coduel signal server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "http server")
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		stopErr := s.Stop()
		if err != nil {
			return err
		}
		return stopErr
	}
}

// Stop closes the listener and transport, cancels outstanding result polls and drops every room.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("shutting down")
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.stopErr = eris.Wrap(err, "failed to shutdown http server")
			}
		}
		s.socketIO.Close(nil)
		s.poller.Stop()
		s.rooms.Close()
	})
	return s.stopErr
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
