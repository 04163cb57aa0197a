// Package store persists named keymap profiles in SQLite. Writes go
// through a single writer goroutine; reads run concurrently under WAL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"keybridge/pkg/interfaces"
	"keybridge/pkg/types"
)

// Config holds store settings.
type Config struct {
	Path            string        `json:"path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	WriteTimeout    time.Duration `json:"write_timeout"`
}

// DefaultConfig returns settings suitable for a single-host daemon.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./keybridge.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		WriteTimeout:    30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("store path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("store max connections must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("store write timeout must be positive")
	}
	return nil
}

// Manager implements interfaces.ProfileStore on SQLite.
type Manager struct {
	db     *sql.DB
	config *Config

	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and the schema, and
// starts the single-writer loop.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if _, err := db.Exec(sqliteOptimizations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply store pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}

	m := &Manager{
		db:       db,
		config:   config,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop serializes all writes through one goroutine; SQLite allows
// a single writer at a time.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.New("profile store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(m.config.WriteTimeout):
		return errors.New("store write timeout")
	case <-m.shutdown:
		return errors.New("profile store is shutting down")
	}
}

// SaveProfile creates or replaces a profile by name.
func (m *Manager) SaveProfile(ctx context.Context, profile *types.KeymapProfile) error {
	return m.executeWrite(func(db *sql.DB) error {
		keymapJSON, err := json.Marshal(profile.Keymap)
		if err != nil {
			return fmt.Errorf("failed to marshal keymap: %w", err)
		}

		now := time.Now().UTC()
		query := `
			INSERT INTO keymap_profiles (name, keymap, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET keymap = excluded.keymap, updated_at = excluded.updated_at
		`
		if _, err := db.ExecContext(ctx, query, profile.Name, string(keymapJSON), now, now); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	})
}

// GetProfile retrieves a profile by name.
func (m *Manager) GetProfile(ctx context.Context, name string) (*types.KeymapProfile, error) {
	query := `
		SELECT name, keymap, created_at, updated_at
		FROM keymap_profiles
		WHERE name = ?
	`
	row := m.db.QueryRowContext(ctx, query, name)

	profile, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return profile, nil
}

// ListProfiles returns all profiles ordered by name.
func (m *Manager) ListProfiles(ctx context.Context) ([]*types.KeymapProfile, error) {
	query := `
		SELECT name, keymap, created_at, updated_at
		FROM keymap_profiles
		ORDER BY name ASC
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*types.KeymapProfile
	for rows.Next() {
		profile, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a profile by name.
func (m *Manager) DeleteProfile(ctx context.Context, name string) error {
	var affected int64
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM keymap_profiles WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrProfileNotFound
	}
	return nil
}

// HealthCheck verifies connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM keymap_profiles").Scan(&count); err != nil {
		return fmt.Errorf("store read test failed: %w", err)
	}
	return nil
}

// Close shuts down the writer loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	log.Println("Profile store closed")
	return nil
}

func scanProfile(scan func(dest ...any) error) (*types.KeymapProfile, error) {
	var profile types.KeymapProfile
	var keymapJSON string

	if err := scan(&profile.Name, &keymapJSON, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keymapJSON), &profile.Keymap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keymap: %w", err)
	}
	return &profile, nil
}
