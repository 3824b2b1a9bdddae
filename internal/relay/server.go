package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/present"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
	"github.com/remoteplay/rpctl/internal/version"
)

// ErrSessionEnded is returned by Run when the console closes the session.
var ErrSessionEnded = stream.ErrSessionEnded

// Options configures a relay server.
type Options struct {
	Listen         string
	AllowedOrigins []string
	// FFmpeg decodes PNG captures; empty disables ?format=png.
	FFmpeg string
	Stream stream.Options
	// Hosts backs /api/hosts; nil serves an empty list.
	Hosts *hostconfig.Store
}

// Server exposes one session over HTTP and websocket.
type Server struct {
	sess   *session.Session
	opts   Options
	hub    *Hub
	router chi.Router
}

// NewServer builds the router for sess.
func NewServer(sess *session.Session, opts Options) *Server {
	s := &Server{
		sess:   sess,
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.hub = NewHub(sess.Controller(), s.originAllowed)
	s.setupRoutes()
	return s
}

// Hub returns the frame fan-out, which is the stream sink.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/hosts", s.handleHosts)
		r.Get("/status", s.handleStatus)
		r.Post("/capture", s.handleCapture)
	})
	s.router.Get("/ws", s.hub.HandleWebSocket)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Run streams the session into the hub and serves HTTP until ctx ends or
// the session is lost.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("relay listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		_, err := stream.Stream(gctx, s.sess, s.hub, s.opts.Stream)
		return err
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-s.sess.Done():
			return stream.Ended(s.sess)
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("relay shutdown")
		}
		return nil
	})

	return g.Wait()
}

// Status is the body of GET /api/status.
type Status struct {
	Session session.Info `json:"session"`
	Clients int          `json:"clients"`
	Frames  uint64       `json:"frames"`
	Bytes   uint64       `json:"bytes"`
	Version string       `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	frames, bytes := s.hub.Stats()
	respondJSON(w, http.StatusOK, Status{
		Session: s.sess.Info(),
		Clients: s.hub.ClientCount(),
		Frames:  frames,
		Bytes:   bytes,
		Version: version.String(),
	})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts := []hostconfig.Host{}
	if s.opts.Hosts != nil {
		hosts = append(hosts, s.opts.Hosts.Hosts()...)
	}
	respondJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if s.sess.State() != session.StateConnected {
		respondError(w, http.StatusServiceUnavailable, "session is not connected")
		return
	}
	frame, err := stream.Capture(r.Context(), s.sess, s.opts.Stream)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stream.ErrCaptureTimeout) {
			status = http.StatusGatewayTimeout
		}
		respondError(w, status, err.Error())
		return
	}

	if r.URL.Query().Get("format") != "png" {
		w.Header().Set("Content-Type", "video/h264")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(frame)
		return
	}

	if s.opts.FFmpeg == "" {
		respondError(w, http.StatusNotImplemented, "png capture needs ffmpeg")
		return
	}
	dir, err := os.MkdirTemp("", "rpctl-capture-")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "capture.png")
	if err := present.DecodeStill(r.Context(), s.opts.FFmpeg, frame, out); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	png, err := os.ReadFile(out)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
