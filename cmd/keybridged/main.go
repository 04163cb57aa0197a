package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keybridge/internal/api"
	"keybridge/internal/config"
	"keybridge/internal/device"
	"keybridge/internal/registry"
	"keybridge/internal/server"
	"keybridge/internal/store"
	"keybridge/pkg/interfaces"
	"keybridge/pkg/keymap"
)

// Application wires the daemon's components together. Initialization
// order: store → device backend → registry → keymap → handlers → HTTP.
type Application struct {
	config        *config.Config
	profileStore  *store.Manager
	registry      *registry.Registry
	keymapHolder  *keymap.Holder
	keymapWatcher *keymap.Watcher
	httpServer    *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storeConfig := store.DefaultConfig()
	storeConfig.Path = cfg.Store.Path
	storeConfig.WriteTimeout = cfg.Store.WriteTimeout

	profileStore, err := store.NewManager(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile store: %w", err)
	}

	backend := newBackend(cfg.Device)
	reg := registry.New(backend)

	holder, watcher, err := newKeymapHolder(cfg.Keymap)
	if err != nil {
		_ = profileStore.Close()
		return nil, err
	}

	wsHandler := server.NewHandler(reg, profileStore, holder, cfg.Device.DefaultID)
	apiServer := api.NewServer(reg, profileStore)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		profileStore:  profileStore,
		registry:      reg,
		keymapHolder:  holder,
		keymapWatcher: watcher,
		httpServer:    httpServer,
	}, nil
}

// newBackend prefers uinput and falls back to mock when the device
// node is unavailable. Mock mode is reported on every connect and in
// /health so it can never pass silently for a real device.
func newBackend(cfg *config.DeviceConfig) interfaces.DeviceBackend {
	backend, err := device.NewUinputBackend(cfg.Name, cfg.Vendor, cfg.Product)
	if err != nil {
		log.Printf("uinput unavailable, running in mock mode: %v", err)
		return device.NewMockBackend()
	}
	log.Printf("uinput backend ready: name=%s", cfg.Name)
	return backend
}

// newKeymapHolder merges an optional override file on top of the
// built-in table and, when configured, watches the file for changes.
func newKeymapHolder(cfg *config.KeymapConfig) (*keymap.Holder, *keymap.Watcher, error) {
	table := keymap.Default()

	if cfg.Path != "" {
		overrides, err := keymap.LoadFile(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load keymap file: %w", err)
		}
		table = keymap.Merge(table, overrides)
		log.Printf("Keymap overrides loaded: path=%s entries=%d", cfg.Path, len(overrides))
	}

	holder := keymap.NewHolder(table)

	if !cfg.Watch {
		return holder, nil, nil
	}

	watcher, err := keymap.NewWatcher(cfg.Path, func(overrides keymap.Keymap) {
		holder.Store(keymap.Merge(keymap.Default(), overrides))
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch keymap file: %w", err)
	}

	return holder, watcher, nil
}

func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting keybridge daemon on %s (backend=%s)", app.httpServer.Addr, app.registry.Mode())

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("keybridge daemon started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP listener first so
// no new sessions arrive, then the registry so every pressed key is
// released and every device destroyed, then the watchers and the store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down keybridge daemon")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.Shutdown()

	if app.keymapWatcher != nil {
		if err := app.keymapWatcher.Close(); err != nil {
			log.Printf("Keymap watcher shutdown error: %v", err)
		}
	}

	if err := app.profileStore.Close(); err != nil {
		log.Printf("Profile store shutdown error: %v", err)
	}

	log.Printf("keybridge daemon shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := os.Getenv("KEYBRIDGE_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return app.Stop(shutdownCtx)
	}
}
