// Package directory resolves user ids to the display profile shown during a call.
package directory

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("directory: profile not found")

type Profile struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty" db:"photo_url"`
}

// Directory is read-only.
type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// MemoryDirectory serves a fixed set of profiles.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryDirectory(profiles ...Profile) *MemoryDirectory {
	d := &MemoryDirectory{profiles: map[string]Profile{}}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *MemoryDirectory) Put(p Profile) {
	d.mu.Lock()
	d.profiles[p.ID] = p
	d.mu.Unlock()
}

func (d *MemoryDirectory) Profile(ctx context.Context, userID string) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
