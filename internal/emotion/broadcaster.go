package emotion

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/logger"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	Version      uint64
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// Event is the JSON shape of one emotion change.
type Event struct {
	Emotion   string `json:"emotion"`
	Version   uint64 `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Broadcaster fans State changes out to SSE clients.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	state   *State
	latest  *SerializedEvent
	stop    chan struct{}
	stopped bool
	done    chan struct{}
}

// NewBroadcaster creates a broadcaster for state.
func NewBroadcaster(state *State) *Broadcaster {
	return &Broadcaster{
		clients: make(map[int]chan *SerializedEvent),
		state:   state,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe adds a new client. The channel first receives the current state.
// After Stop the returned channel is already closed.
func (b *Broadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, 4)
	if b.stopped {
		close(ch)
		logger.Debug("EmotionBroadcaster", "Client #%d subscribed after stop", id)
		return id, ch
	}
	b.clients[id] = ch

	current := b.latest
	if current == nil {
		current = serialize(b.state.Snapshot())
	}
	if current != nil {
		ch <- current
	}

	logger.Debug("EmotionBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("EmotionBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Clients returns the number of subscribers.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Start begins forwarding state changes.
func (b *Broadcaster) Start() {
	go b.run()
}

// Stop halts the broadcaster and closes every client channel.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	close(b.stop)
	b.stopped = true
	b.mu.Unlock()
}

// Done is closed once the run loop has exited.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer b.closeAll()

	var lastVersion uint64
	for {
		changed := b.state.Changed()

		snap := b.state.Snapshot()
		if snap.Version != lastVersion {
			lastVersion = snap.Version
			if event := serialize(snap); event != nil {
				b.broadcast(event)
			}
		}

		select {
		case <-b.stop:
			return
		case <-changed:
		}
	}
}

func serialize(snap Snapshot) *SerializedEvent {
	ts := snap.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	event := Event{
		Emotion:   snap.Emotion,
		Version:   snap.Version,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		logger.Error("EmotionBroadcaster", "JSON marshal error: %v", err)
		return nil
	}

	pbEvent, err := structpb.NewStruct(map[string]any{
		"emotion":   event.Emotion,
		"version":   float64(event.Version),
		"timestamp": event.Timestamp,
	})
	if err != nil {
		logger.Error("EmotionBroadcaster", "Protobuf build error: %v", err)
		return nil
	}
	pbData, err := proto.Marshal(pbEvent)
	if err != nil {
		logger.Error("EmotionBroadcaster", "Protobuf marshal error: %v", err)
		return nil
	}

	return &SerializedEvent{
		Version:      snap.Version,
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}
}

func (b *Broadcaster) broadcast(event *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = event
	for id, ch := range b.clients {
		select {
		case ch <- event:
		default:
			logger.Debug("EmotionBroadcaster", "Client #%d too slow, dropping version %d", id, event.Version)
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
