// Package api exposes the daemon's management surface: health, keymap
// profiles, and device bindings. Input events never pass through here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"keybridge/internal/registry"
	"keybridge/pkg/interfaces"
	"keybridge/pkg/types"
)

// Server handles the HTTP management API. No business logic lives
// here, only HTTP handling and JSON serialization.
type Server struct {
	registry *registry.Registry
	store    interfaces.ProfileStore
	router   *http.ServeMux
	started  time.Time
}

// NewServer creates the management API server.
func NewServer(reg *registry.Registry, store interfaces.ProfileStore) *Server {
	s := &Server{
		registry: reg,
		store:    store,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/profiles", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleProfiles))))
	s.router.Handle("/api/profiles/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleProfileByName))))
	s.router.Handle("/api/devices", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleDevices))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProfiles(w, r)
	case http.MethodPost:
		s.saveProfile(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProfileByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	name = strings.Split(name, "/")[0]
	if !types.IsValidProfileName(name) {
		s.sendError(w, "Invalid profile name", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getProfile(w, r, name)
	case http.MethodDelete:
		s.deleteProfile(w, r, name)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type ListProfilesResponse struct {
	Profiles []*types.KeymapProfile `json:"profiles"`
}

type DevicesResponse struct {
	Mode    string                 `json:"mode"`
	Devices []registry.BindingInfo `json:"devices"`
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Store     string         `json:"store"`
	Device    DeviceHealth   `json:"device"`
	Bindings  map[string]int `json:"bindings"`
}

type DeviceHealth struct {
	Mode string `json:"mode"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list profiles", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []*types.KeymapProfile{}
	}
	_ = json.NewEncoder(w).Encode(ListProfilesResponse{Profiles: profiles})
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request) {
	var profile types.KeymapProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !types.IsValidProfileName(profile.Name) {
		s.sendError(w, "Invalid profile name", http.StatusBadRequest)
		return
	}
	if len(profile.Keymap) == 0 {
		s.sendError(w, "Keymap cannot be empty", http.StatusBadRequest)
		return
	}

	if err := s.store.SaveProfile(r.Context(), &profile); err != nil {
		s.sendError(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Profile saved"})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request, name string) {
	profile, err := s.store.GetProfile(r.Context(), name)
	if err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			s.sendError(w, "Profile not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get profile", http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(profile)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.store.DeleteProfile(r.Context(), name); err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			s.sendError(w, "Profile not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to delete profile", http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Profile deleted"})
}

// handleDevices reports the current device bindings.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snapshot := s.registry.Snapshot()
		if snapshot == nil {
			snapshot = []registry.BindingInfo{}
		}
		_ = json.NewEncoder(w).Encode(DevicesResponse{
			Mode:    s.registry.Mode(),
			Devices: snapshot,
		})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Store:     storeStatus,
		Device:    DeviceHealth{Mode: s.registry.Mode()},
		Bindings:  s.registry.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
