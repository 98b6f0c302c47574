// Package host exposes the playback controllers to the web UI over a websocket.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/playback"
)

// Health reports the state of the shared engine.
type Health interface {
	Ready() bool
	Owner() (string, bool)
}

// Server routes web UI commands to the video and audio-only controllers.
type Server struct {
	hub    *Hub
	video  *playback.Controller
	audio  *playback.Controller
	health Health
	router *chi.Mux

	// commandTimeout bounds one command, including engine start-up.
	commandTimeout time.Duration

	mu     sync.Mutex
	active *playback.Controller
}

// NewServer creates a server. The controllers must have been created with the
// hub's notifiers.
func NewServer(hub *Hub, video, audio *playback.Controller, health Health) *Server {
	s := &Server{
		hub:            hub,
		video:          video,
		audio:          audio,
		health:         health,
		router:         chi.NewRouter(),
		commandTimeout: 30 * time.Second,
		active:         video,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.serve(w, r, func(cmd Command) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
			defer cancel()
			return s.Dispatch(ctx, cmd)
		})
	})
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status      string `json:"status"`
	EngineReady bool   `json:"engineReady"`
	Owner       string `json:"owner,omitempty"`
	Clients     int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Clients: s.hub.Clients()}
	if s.health != nil {
		resp.EngineReady = s.health.Ready()
		resp.Owner, _ = s.health.Owner()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warnf("write health response: %v", err)
	}
}

// controllerFor picks the player a command addresses. Play commands choose by media
// type; other commands without a media type go to the player that played last.
func (s *Server) controllerFor(cmd Command) *playback.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case cmd.MediaType == MediaTypeAudio:
		return s.audio
	case cmd.MediaType != "" || cmd.Type == MsgPlay:
		return s.video
	default:
		return s.active
	}
}

// Dispatch carries out one command.
func (s *Server) Dispatch(ctx context.Context, cmd Command) error {
	c := s.controllerFor(cmd)

	switch cmd.Type {
	case MsgPlay:
		req, err := cmd.Request()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.active = c
		s.mu.Unlock()
		return c.Play(ctx, req)
	case MsgStop:
		c.Stop(ctx, cmd.Destroy)
		return nil
	case MsgSetAudioTrack:
		if cmd.Index == nil {
			return fmt.Errorf("%s: index is required", cmd.Type)
		}
		c.SetAudioTrack(ctx, *cmd.Index)
		return nil
	case MsgSetSubtitleTrack:
		if !c.SupportsSubtitleTrackSwitching() {
			return fmt.Errorf("%s: %s player has no subtitles", cmd.Type, c.Name())
		}
		index := playback.SubtitlesOff
		if cmd.Index != nil {
			index = *cmd.Index
		}
		c.SetSubtitleTrack(ctx, index)
		return nil
	case MsgSeek:
		return c.SeekTo(ctx, cmd.PositionMs)
	case MsgPause:
		return c.Pause(ctx)
	case MsgResume:
		return c.Resume(ctx)
	case MsgSetVolume:
		return c.SetVolume(ctx, cmd.Value)
	case MsgSetPlaybackRate:
		return c.SetPlaybackRate(ctx, cmd.Value)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("ui host listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ui host: %w", err)
	case <-ctx.Done():
	}

	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown ui host: %w", err)
	}
	return nil
}
