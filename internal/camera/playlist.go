package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// Playlist replays a fixed list of JPEG frames. It stands in for a webcam on
// machines without one and backs the pipeline tests.
type Playlist struct {
	mu       sync.Mutex
	frames   [][]byte
	next     int
	seq      uint64
	loop     bool
	interval time.Duration
	closed   bool
}

// NewPlaylist creates a playlist over frames. With loop set the playlist
// restarts at the end; otherwise reads past the last frame fail with
// ErrUnavailable. interval paces reads like a real capture device (0 = no wait).
func NewPlaylist(frames [][]byte, loop bool, interval time.Duration) *Playlist {
	return &Playlist{
		frames:   frames,
		loop:     loop,
		interval: interval,
	}
}

// LoadDir builds a looping playlist from the .jpg/.jpeg files in dir, sorted by name.
func LoadDir(dir string, interval time.Duration) (*Playlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		frames = append(frames, data)
	}

	return NewPlaylist(frames, true, interval), nil
}

// Read returns the next frame in the playlist.
func (p *Playlist) Read(ctx context.Context) (types.Frame, error) {
	if p.interval > 0 {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return types.Frame{}, fmt.Errorf("%w: playlist closed", ErrUnavailable)
	}
	if p.next >= len(p.frames) {
		if !p.loop || len(p.frames) == 0 {
			return types.Frame{}, fmt.Errorf("%w: end of playlist", ErrUnavailable)
		}
		p.next = 0
	}

	data := p.frames[p.next]
	p.next++
	p.seq++

	return types.Frame{
		Data:      data,
		Timestamp: time.Now(),
		Seq:       p.seq,
	}, nil
}

// Close makes further reads fail.
func (p *Playlist) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
