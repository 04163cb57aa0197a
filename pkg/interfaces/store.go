package interfaces

import (
	"context"

	"keybridge/pkg/types"
)

// ProfileStore persists named keymap profiles. Profiles only seed a
// session's initial keymap; per-session keymaps live in memory and die
// with the session.
type ProfileStore interface {
	// SaveProfile creates or replaces a profile by name.
	SaveProfile(ctx context.Context, profile *types.KeymapProfile) error

	// GetProfile retrieves a profile by name. Returns
	// ErrProfileNotFound when no such profile exists.
	GetProfile(ctx context.Context, name string) (*types.KeymapProfile, error)

	// ListProfiles returns all profiles ordered by name.
	ListProfiles(ctx context.Context) ([]*types.KeymapProfile, error)

	// DeleteProfile removes a profile by name. Deleting a missing
	// profile returns ErrProfileNotFound.
	DeleteProfile(ctx context.Context, name string) error

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close shuts the store down after pending writes complete.
	Close() error
}
