// server/streams.go
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/playerhook/network"
)

// StreamGauge counts open session streams.
type StreamGauge interface {
	IncOpenStreams()
	DecOpenStreams()
}

type nopGauge struct{}

func (nopGauge) IncOpenStreams() {}
func (nopGauge) DecOpenStreams() {}

// Stream is one websocket following a session.
type Stream struct {
	ID         string
	SessionURL string
	Viewer     string
	Conn       network.Connection
	OpenedAt   time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewStream(sessionURL, viewer string, conn network.Connection) *Stream {
	now := time.Now()
	return &Stream{
		ID:         uuid.NewString(),
		SessionURL: sessionURL,
		Viewer:     viewer,
		Conn:       conn,
		OpenedAt:   now,
		LastActive: now,
	}
}

func (s *Stream) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.LastActive = time.Now()
}

func (s *Stream) Idle() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.LastActive)
}

// StreamManager tracks the open streams of this node.
type StreamManager struct {
	streams map[string]*Stream
	gauge   StreamGauge
	mutex   sync.RWMutex
}

func NewStreamManager(gauge StreamGauge) *StreamManager {
	if gauge == nil {
		gauge = nopGauge{}
	}
	return &StreamManager{
		streams: make(map[string]*Stream),
		gauge:   gauge,
	}
}

func (m *StreamManager) Add(stream *Stream) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.streams[stream.ID] = stream
	m.gauge.IncOpenStreams()
}

func (m *StreamManager) Remove(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.streams[id]; ok {
		delete(m.streams, id)
		m.gauge.DecOpenStreams()
	}
}

func (m *StreamManager) Get(id string) (*Stream, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	stream, exists := m.streams[id]
	return stream, exists
}

// BySession returns the streams following the session at url.
func (m *StreamManager) BySession(url string) []*Stream {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Stream
	for _, stream := range m.streams {
		if stream.SessionURL == url {
			result = append(result, stream)
		}
	}
	return result
}

func (m *StreamManager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.streams)
}

// CloseAll closes every open connection. The stream handlers remove
// themselves once their reads fail.
func (m *StreamManager) CloseAll() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, stream := range m.streams {
		stream.Conn.Close()
	}
}
