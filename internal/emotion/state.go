package emotion

import (
	"sync"
	"time"
)

const (
	// Neutral is the label before the first inference.
	Neutral = "Neutral"
	// Unknown is published when inference fails.
	Unknown = "Unknown"
)

// Snapshot is a consistent view of the state.
type Snapshot struct {
	Emotion   string    `json:"emotion"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State is the current emotion label. The loop is its only writer; any number
// of readers may call Get or Snapshot concurrently. Readers may see a label
// that is already stale; the latest write wins.
type State struct {
	mu        sync.RWMutex
	emotion   string
	version   uint64
	updatedAt time.Time
	changed   chan struct{}
}

// NewState returns a State holding Neutral.
func NewState() *State {
	return &State{
		emotion: Neutral,
		changed: make(chan struct{}),
	}
}

// Get returns the current label.
func (s *State) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotion
}

// Snapshot returns the label with its version and update time.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Emotion: s.emotion, Version: s.version, UpdatedAt: s.updatedAt}
}

// Publish replaces the label and wakes Changed waiters. It returns the new version.
func (s *State) Publish(label string) uint64 {
	s.mu.Lock()
	s.emotion = label
	s.version++
	s.updatedAt = time.Now()
	v := s.version
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	return v
}

// Changed returns a channel closed by the next Publish.
func (s *State) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}
