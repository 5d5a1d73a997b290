package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/storage"
)

//go:embed templates/*
var templateFS embed.FS

// Ticker is the part of the worker the status server drives.
type Ticker interface {
	LastResult() (model.TickResult, bool)
	Refresh()
}

type Server struct {
	store  storage.WatermarkStore
	worker Ticker
	router *http.ServeMux
	log    zerolog.Logger
}

type Status struct {
	Watermark    string            `json:"watermark,omitempty"`
	HasWatermark bool              `json:"has_watermark"`
	LastTick     *model.TickResult `json:"last_tick,omitempty"`
}

func NewServer(store storage.WatermarkStore, w Ticker, log zerolog.Logger) *Server {
	s := &Server{
		store:  store,
		worker: w,
		router: http.NewServeMux(),
		log:    logger.Component(log, "web"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth)
	s.router.HandleFunc("/status", s.handleStatus)
	s.router.HandleFunc("/refresh", s.handleRefresh)
	s.router.HandleFunc("/", s.handleIndex)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status(r)
	if err != nil {
		http.Error(w, "Failed to read watermark: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write status")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.worker.Refresh()
	s.log.Info().Msg("Refresh requested")

	if r.Header.Get("Accept") == "application/json" {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st, err := s.status(r)
	if err != nil {
		http.Error(w, "Failed to read watermark: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.renderTemplate(w, "status.html", st)
}

func (s *Server) status(r *http.Request) (Status, error) {
	var st Status
	token, ok, err := s.store.Read(r.Context())
	if err != nil {
		return st, err
	}
	st.Watermark, st.HasWatermark = token, ok
	if res, ok := s.worker.LastResult(); ok {
		st.LastTick = &res
	}
	return st, nil
}

func (s *Server) renderTemplate(w http.ResponseWriter, tmplName string, data interface{}) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+tmplName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("Execute error: %v", err), http.StatusInternalServerError)
	}
}
