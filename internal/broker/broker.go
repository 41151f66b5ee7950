// Package broker implements the websocket-based fan-out that the run
// loop treats as its "active broker connection" signal: a
// one-directional status publisher where subscribers receive run-loop
// snapshots and never drive capture commands back into the loop.
package broker

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wireloop/internal/stream"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusMessage is the run-loop snapshot published to subscribers.
type StatusMessage struct {
	RunID       string  `json:"runId"`
	NetworkTime float64 `json:"networkTime"`
	Dispatched  int     `json:"dispatched"`
	Flows       int     `json:"flows"`
	Terminating bool    `json:"terminating"`
}

// StreamEvent is published whenever the session layer's TCP reassembly
// recognizes a complete HTTP transaction on a stream.
type StreamEvent struct {
	RunID    string `json:"runId"`
	StreamID uint64 `json:"streamId"`
	Method   string `json:"method,omitempty"`
	URL      string `json:"url,omitempty"`
	Status   int    `json:"statusCode,omitempty"`
}

// Manager fans a StatusMessage out to every connected subscriber and
// reports whether any subscriber is currently connected — the signal
// the main loop's idle-advance condition reads.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	runID       uuid.UUID
}

// NewManager returns an empty Manager tagged with runID for the
// published status messages.
func NewManager(runID uuid.UUID) *Manager {
	return &Manager{subscribers: make(map[*subscriber]struct{}), runID: runID}
}

// Active reports whether any subscriber is currently connected.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers) > 0
}

// Publish fans status out to every connected subscriber, non-blocking:
// a subscriber whose send buffer is full is dropped this round rather
// than stalling the run loop.
func (m *Manager) Publish(status StatusMessage) {
	status.RunID = m.runID.String()
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.fanOut(status)
}

// PublishStreamEvent fans a recognized HTTP transaction out to every
// subscriber, implementing internal/stream.Broadcaster.
func (m *Manager) PublishStreamEvent(streamID uint64, httpInfo *stream.HTTPTransaction) {
	if httpInfo == nil {
		return
	}
	ev := StreamEvent{
		RunID:    m.runID.String(),
		StreamID: streamID,
		Method:   httpInfo.Method,
		URL:      httpInfo.URL,
		Status:   httpInfo.StatusCode,
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.fanOut(ev)
}

// fanOut is the shared non-blocking send used by Publish and
// PublishStreamEvent: a subscriber whose buffer is full is dropped this
// round rather than stalling the caller. Callers must hold m.mu.
func (m *Manager) fanOut(payload any) {
	for s := range m.subscribers {
		select {
		case s.sendCh <- payload:
		default:
		}
	}
}

func (m *Manager) register(s *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s] = struct{}{}
}

func (m *Manager) unregister(s *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, s)
}

type subscriber struct {
	conn   *websocket.Conn
	sendCh chan any
	done   chan struct{}
}

func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop exists only to notice disconnects: subscribers never send
// commands this direction, so inbound frames are read and discarded,
// and the session ends on the first read error.
func (m *Manager) readLoop(s *subscriber) {
	defer func() {
		m.unregister(s)
		close(s.done)
		close(s.sendCh)
	}()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleWebSocket upgrades the connection and registers it as a status
// subscriber.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("broker: websocket upgrade error: %v", err)
		return
	}
	s := &subscriber{conn: conn, sendCh: make(chan any, sendBuffer), done: make(chan struct{})}
	m.register(s)
	go s.writeLoop()
	m.readLoop(s)
}
