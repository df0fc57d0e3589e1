// Package api exposes the small HTTP surface of the bot: a changelog
// announcement endpoint for the release pipeline and a health probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
)

// Server publishes changelog posts into a Discord channel.
type Server struct {
	msgr   platform.Messenger
	server *http.Server
}

func NewServer(addr string, msgr platform.Messenger) *Server {
	s := &Server{msgr: msgr}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/dev/changelog", s.handleChangelog)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	logger.Info("api server listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type changelogRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ChannelID string `json:"channelId"`
}

func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req changelogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" || (req.Title == "" && req.Content == "") {
		http.Error(w, "channelId and title or content required", http.StatusBadRequest)
		return
	}

	_, err := s.msgr.Send(r.Context(), req.ChannelID, platform.Outgoing{
		Embeds: []platform.Embed{{
			AuthorName:  req.Title,
			Description: req.Content,
		}},
	})
	if err != nil {
		logger.Error("changelog publish failed", "channel", req.ChannelID, "error", err)
		http.Error(w, "send failed", http.StatusInternalServerError)
		return
	}

	logger.Info("changelog published", "channel", req.ChannelID, "title", req.Title)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
