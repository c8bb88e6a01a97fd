package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
)

// Memory is an in-process Store for single-node deployments and tests.
type Memory struct {
	sessions map[string]session.Record
	results  map[string][]models.GameResult
	mutex    sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]session.Record),
		results:  make(map[string][]models.GameResult),
	}
}

func (m *Memory) SaveSession(_ context.Context, rec session.Record) error {
	if rec.URL == "" {
		return ErrNoURL
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if stored, ok := m.sessions[rec.URL]; ok && stored.Version >= rec.Version {
		return ErrStaleVersion
	}
	m.sessions[rec.URL] = rec
	return nil
}

func (m *Memory) LoadSession(_ context.Context, url string) (session.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.sessions[url]
	if !ok {
		return session.Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) ActiveSessions(_ context.Context) ([]session.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]session.Record, 0, len(m.sessions))
	for _, rec := range m.sessions {
		if rec.Status != state.Finished.String() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, url string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, url)
	return nil
}

func (m *Memory) SaveResult(_ context.Context, result models.GameResult) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.results[result.URL] = append(m.results[result.URL], result)
	return nil
}

func (m *Memory) Results(_ context.Context, url string) ([]models.GameResult, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]models.GameResult(nil), m.results[url]...), nil
}

func (m *Memory) Close() error {
	return nil
}
