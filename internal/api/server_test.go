package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"keybridge/internal/device"
	"keybridge/internal/registry"
	"keybridge/pkg/interfaces"
	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

type mockStore struct {
	profiles  map[string]*types.KeymapProfile
	healthErr error
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[string]*types.KeymapProfile)}
}

func (s *mockStore) SaveProfile(ctx context.Context, profile *types.KeymapProfile) error {
	s.profiles[profile.Name] = profile
	return nil
}

func (s *mockStore) GetProfile(ctx context.Context, name string) (*types.KeymapProfile, error) {
	profile, ok := s.profiles[name]
	if !ok {
		return nil, interfaces.ErrProfileNotFound
	}
	return profile, nil
}

func (s *mockStore) ListProfiles(ctx context.Context) ([]*types.KeymapProfile, error) {
	var out []*types.KeymapProfile
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *mockStore) DeleteProfile(ctx context.Context, name string) error {
	if _, ok := s.profiles[name]; !ok {
		return interfaces.ErrProfileNotFound
	}
	delete(s.profiles, name)
	return nil
}

func (s *mockStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *mockStore) Close() error                          { return nil }

func newTestServer() (*Server, *mockStore, *registry.Registry) {
	store := newMockStore()
	reg := registry.New(device.NewMockBackend())
	return NewServer(reg, store), store, reg
}

func TestHealthCheck(t *testing.T) {
	server, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("expected healthy, got %s", response.Status)
	}
	if response.Device.Mode != "mock" {
		t.Errorf("expected mock mode, got %s", response.Device.Mode)
	}
}

func TestHealthCheckUnhealthyStore(t *testing.T) {
	server, store, _ := newTestServer()
	store.healthErr = errors.New("disk full")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	server, _, _ := newTestServer()

	body, _ := json.Marshal(types.KeymapProfile{
		Name:   "dvorak",
		Keymap: map[string]string{"KeyS": "KEY_O"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/profiles", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/profiles/dvorak", nil)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var profile types.KeymapProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to parse profile: %v", err)
	}
	if profile.Keymap["KeyS"] != "KEY_O" {
		t.Errorf("expected KeyS -> KEY_O, got %s", profile.Keymap["KeyS"])
	}
}

func TestSaveProfileValidation(t *testing.T) {
	server, _, _ := newTestServer()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"bad name", `{"name":"has spaces!","keymap":{"KeyA":"KEY_A"}}`},
		{"empty keymap", `{"name":"ok","keymap":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/profiles", bytes.NewReader([]byte(tc.body)))
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetProfileNotFound(t *testing.T) {
	server, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/missing", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteProfile(t *testing.T) {
	server, store, _ := newTestServer()
	store.profiles["temp"] = &types.KeymapProfile{Name: "temp", Keymap: map[string]string{}}

	req := httptest.NewRequest(http.MethodDelete, "/api/profiles/temp", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := store.profiles["temp"]; ok {
		t.Error("profile should be deleted")
	}
}

func TestListProfiles(t *testing.T) {
	server, store, _ := newTestServer()
	store.profiles["a"] = &types.KeymapProfile{Name: "a", Keymap: map[string]string{}}
	store.profiles["b"] = &types.KeymapProfile{Name: "b", Keymap: map[string]string{}}

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var response ListProfilesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Profiles) != 2 {
		t.Errorf("expected 2 profiles, got %d", len(response.Profiles))
	}
}

func TestDevicesEndpoint(t *testing.T) {
	server, _, reg := newTestServer()

	if _, err := reg.Bind(0, "session-1", keymap.Default()); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var response DevicesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Mode != "mock" {
		t.Errorf("expected mock mode, got %s", response.Mode)
	}
	if len(response.Devices) != 1 || response.Devices[0].DeviceID != 0 {
		t.Errorf("expected one binding for device 0, got %+v", response.Devices)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPut, "/api/profiles", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/profiles", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on preflight response")
	}
}
