package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/state"
)

var (
	ErrAlreadyExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Registry holds the live authoritative session of each URL. A session
// stays registered until its update stream completes.
type Registry struct {
	sessions map[string]*Session
	rules    *game.RuleRegistry
	opts     []Option
	mutex    sync.RWMutex
}

// NewRegistry returns an empty registry. rules resolves rule descriptors of
// loaded records; opts apply to every session the registry creates.
func NewRegistry(rules *game.RuleRegistry, opts ...Option) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rules:    rules,
		opts:     opts,
	}
}

// Rules exposes the rule registry used to resolve records.
func (r *Registry) Rules() *game.RuleRegistry {
	return r.rules
}

// Create starts a new WAITING session of g under url, generating a url
// when none is given.
func (r *Registry) Create(g game.Game, url string) (*Session, error) {
	if url == "" {
		url = uuid.NewString()
	}
	s := New(g, url, r.opts...)
	if err := r.Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Register adds s under its URL. It fails while another unfinished session
// holds the URL.
func (r *Registry) Register(s *Session) error {
	url := s.URL()

	r.mutex.Lock()
	if existing, ok := r.sessions[url]; ok && existing != s && existing.Status() != state.Finished {
		r.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, url)
	}
	r.sessions[url] = s
	r.mutex.Unlock()

	r.watch(url, s)
	return nil
}

// watch evicts s once its stream completes.
func (r *Registry) watch(url string, s *Session) {
	sub := s.Subscribe()
	go func() {
		for range sub.Updates() {
		}
		r.evict(url, s)
		if err := sub.Err(); err != nil {
			logger.Log.Warnf("session %s failed: %v", url, err)
		}
	}()
}

func (r *Registry) evict(url string, s *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.sessions[url] == s {
		delete(r.sessions, url)
		logger.Log.Debugf("session %s evicted", url)
	}
}

func (r *Registry) Get(url string) (*Session, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.sessions[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, url)
	}
	return s, nil
}

// Load applies a record. A live session under the record's URL merges it;
// otherwise the record becomes a new authoritative session, registered
// unless already finished. It reports whether the record changed anything.
func (r *Registry) Load(rec Record) (*Session, bool, error) {
	if rec.URL == "" {
		return nil, false, fmt.Errorf("%w: record has no url", ErrMalformedRecord)
	}
	snap, err := LoadSnapshot(rec, r.rules)
	if err != nil {
		return nil, false, err
	}

	r.mutex.Lock()
	if s, ok := r.sessions[rec.URL]; ok {
		r.mutex.Unlock()
		return s, s.Merge(snap), nil
	}
	s := FromSnapshot(snap, r.opts...)
	if snap.status == state.Finished {
		r.mutex.Unlock()
		return s, true, nil
	}
	r.sessions[rec.URL] = s
	r.mutex.Unlock()

	r.watch(rec.URL, s)
	return s, true, nil
}

func (r *Registry) Remove(url string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, url)
}

// List returns the live sessions ordered by URL.
func (r *Registry) List() []*Session {
	r.mutex.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mutex.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].URL() < sessions[j].URL() })
	return sessions
}

func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}
