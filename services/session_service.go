// services/session_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/persistence"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
	"github.com/wfunc/playerhook/timer"
	"github.com/wfunc/playerhook/webhook"
)

var (
	ErrUnknownRules = errors.New("unknown rules")
	ErrInvalidHook  = errors.New("invalid hook url")
)

// Gauges is the slice of the monitor the service drives directly.
type Gauges interface {
	SetActiveSessions(count int)
}

type nopGauges struct{}

func (nopGauges) SetActiveSessions(int) {}

// SessionService is the single entry point the transports use. It creates
// sessions under this node's base URL, persists every published snapshot,
// archives finished games and fans updates out to registered hooks.
type SessionService struct {
	registry  *session.Registry
	store     persistence.Store
	forwarder *webhook.Forwarder
	gauges    Gauges
	timers    *timer.TimerManager
	baseURL   string
	now       func() time.Time

	tracked map[string]bool
	mutex   sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*SessionService)

func WithGauges(g Gauges) Option {
	return func(s *SessionService) { s.gauges = g }
}

// WithSyncInterval persists every live session periodically on top of the
// per-update writes, so a failed write is retried.
func WithSyncInterval(interval time.Duration) Option {
	return func(s *SessionService) {
		if interval > 0 {
			s.timers.AddTimer("session-sync", interval, interval, s.SyncAll)
		}
	}
}

func NewSessionService(baseURL string, registry *session.Registry, store persistence.Store, forwarder *webhook.Forwarder, opts ...Option) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SessionService{
		registry:  registry,
		store:     store,
		forwarder: forwarder,
		gauges:    nopGauges{},
		timers:    timer.NewTimerManager(),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		now:       time.Now,
		tracked:   make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context is cancelled when the service closes.
func (s *SessionService) Context() context.Context {
	return s.ctx
}

// URLFor returns the URL of the local session id.
func (s *SessionService) URLFor(id string) string {
	return s.baseURL + "/sessions/" + id
}

// IDOf returns the local id of the session at url, or "" when url does not
// belong to this node.
func (s *SessionService) IDOf(url string) string {
	prefix := s.baseURL + "/sessions/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// Rules lists the registered rules ids.
func (s *SessionService) Rules() []string {
	return s.registry.Rules().IDs()
}

// Restore loads every unfinished session from the store into the registry.
func (s *SessionService) Restore(ctx context.Context) (int, error) {
	records, err := s.store.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, rec := range records {
		sess, _, err := s.registry.Load(rec)
		if err != nil {
			logger.Log.Warnf("Cannot restore session %s: %v", rec.URL, err)
			continue
		}
		s.track(sess)
		restored++
	}
	s.gauges.SetActiveSessions(s.registry.Count())
	logger.Log.Infof("Restored %d sessions", restored)
	return restored, nil
}

// Create starts a new session of the rules registered under rulesID.
func (s *SessionService) Create(ctx context.Context, rulesID, title string) (*session.Session, error) {
	rules, ok := s.registry.Rules().Lookup(rulesID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRules, rulesID)
	}
	if title == "" {
		title = rules.Description()
	}
	url := s.URLFor(uuid.NewString())
	g, err := game.NewGame(title, rules.Description(), url, rules)
	if err != nil {
		return nil, err
	}
	sess, err := s.registry.Create(g, url)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, sess.Snapshot())
	s.track(sess)
	s.gauges.SetActiveSessions(s.registry.Count())
	logger.Log.Infof("Created %s", sess.Snapshot())
	return sess, nil
}

// Get returns the live local session id.
func (s *SessionService) Get(id string) (*session.Session, error) {
	return s.registry.Get(s.URLFor(id))
}

// Snapshot returns the current state of session id. Sessions that already
// left the registry are read back from the store.
func (s *SessionService) Snapshot(ctx context.Context, id string) (*session.Snapshot, error) {
	if sess, err := s.Get(id); err == nil {
		return sess.Snapshot(), nil
	}
	rec, err := s.store.LoadSession(ctx, s.URLFor(id))
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return session.LoadSnapshot(rec, s.registry.Rules())
}

// Join seats player in session id. A non-empty hook URL receives the
// player's protected view of every later update.
func (s *SessionService) Join(id string, player game.Player, hook string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := sess.Join(player); err != nil {
		return err
	}
	if hook != "" {
		return s.AddHook(id, webhook.Hook{URL: hook, Player: player.Username})
	}
	return nil
}

// AddHook registers a counterpart for session id.
func (s *SessionService) AddHook(id string, hook webhook.Hook) error {
	if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidHook, hook.URL)
	}
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	s.forwarder.Attach(s.ctx, sess, hook)
	return nil
}

func (s *SessionService) Hooks(id string) []webhook.Hook {
	return s.forwarder.Hooks(s.URLFor(id))
}

func (s *SessionService) Start(id string) error {
	return s.with(id, (*session.Session).Start)
}

func (s *SessionService) Suspend(id string) error {
	return s.with(id, (*session.Session).Suspend)
}

func (s *SessionService) Resume(id string) error {
	return s.with(id, (*session.Session).Resume)
}

func (s *SessionService) with(id string, op func(*session.Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return op(sess)
}

// Sign attaches a signing secret to session id. Signing publishes no
// update, so the new secret and version are written through here.
func (s *SessionService) Sign(id, secret string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.SignWith(secret)
	s.persist(s.ctx, sess.Snapshot())
	return nil
}

// Key returns the key username must sign its next placement with.
func (s *SessionService) Key(id, username string) (string, error) {
	sess, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return sess.KeyFor(game.NewPlayer(username))
}

func (s *SessionService) Play(id string, p game.Placement) (game.Move, error) {
	sess, err := s.Get(id)
	if err != nil {
		return game.Move{}, err
	}
	return sess.Play(p)
}

// Sync applies a record pushed by a remote authority.
func (s *SessionService) Sync(rec session.Record) (bool, error) {
	sess, applied, err := s.registry.Load(rec)
	if err != nil {
		return false, err
	}
	if applied && sess.Status() != state.Finished {
		s.track(sess)
	}
	s.gauges.SetActiveSessions(s.registry.Count())
	return applied, nil
}

// List summarizes every live session.
func (s *SessionService) List() []models.SessionSummary {
	sessions := s.registry.List()
	out := make([]models.SessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = models.Summarize(sess.Snapshot())
	}
	return out
}

// Results returns the archived outcomes of session id.
func (s *SessionService) Results(ctx context.Context, id string) ([]models.GameResult, error) {
	return s.store.Results(ctx, s.URLFor(id))
}

// SyncAll persists the current snapshot of every live session.
func (s *SessionService) SyncAll() {
	for _, sess := range s.registry.List() {
		s.persist(s.ctx, sess.Snapshot())
	}
	s.gauges.SetActiveSessions(s.registry.Count())
}

// Close stops the background work and waits for it to finish.
func (s *SessionService) Close() {
	s.timers.Stop()
	s.cancel()
	s.wg.Wait()
	s.forwarder.Wait()
}

// track persists every update of sess and archives its result once it
// finishes. Tracking the same session twice is a no-op.
func (s *SessionService) track(sess *session.Session) {
	url := sess.URL()
	s.mutex.Lock()
	if s.tracked[url] {
		s.mutex.Unlock()
		return
	}
	s.tracked[url] = true
	s.mutex.Unlock()

	sub := sess.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Close()
		defer func() {
			s.mutex.Lock()
			delete(s.tracked, url)
			s.mutex.Unlock()
		}()

		for {
			select {
			case <-s.ctx.Done():
				return
			case u, ok := <-sub.Updates():
				if !ok {
					if err := sub.Err(); err != nil {
						logger.Log.Errorf("Session %s failed: %v", url, err)
					}
					s.gauges.SetActiveSessions(s.registry.Count())
					return
				}
				s.persist(s.ctx, u.Snapshot)
				if u.Finishing() {
					s.archive(s.ctx, u.Snapshot)
				}
			}
		}
	}()
}

func (s *SessionService) persist(ctx context.Context, snap *session.Snapshot) {
	err := s.store.SaveSession(ctx, snap.Record(session.Internal, ""))
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrStaleVersion):
		logger.Log.Debugf("Skipping stale write of %s", snap)
	default:
		logger.Log.Errorf("Failed to persist %s: %v", snap, err)
	}
}

func (s *SessionService) archive(ctx context.Context, snap *session.Snapshot) {
	result := models.ResultOf(snap.Record(session.Internal, ""), s.now())
	if err := s.store.SaveResult(ctx, result); err != nil {
		logger.Log.Errorf("Failed to archive %s: %v", snap, err)
		return
	}
	logger.Log.Infof("Archived %s with scores %v", snap, result.Scores)
}
