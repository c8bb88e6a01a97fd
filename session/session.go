// session/session.go
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/playerhook/broadcast"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/signing"
	"github.com/wfunc/playerhook/state"
)

var (
	ErrAlreadyJoined    = errors.New("player already joined")
	ErrNoSeatsAvailable = errors.New("no seats available")
	ErrAlreadyStarted   = errors.New("game has already started")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrNotInProgress    = errors.New("game is not in progress")
	ErrNotSuspended     = errors.New("game is not suspended")
	ErrSigning          = errors.New("cannot derive player key")
	ErrIllegalOutcome   = errors.New("rules produced an illegal outcome")
)

// JoinPolicy decides whether players may join after the game started.
type JoinPolicy string

const (
	JoinBeforeStart JoinPolicy = "pre-start"
	JoinAnyTime     JoinPolicy = "any-time"
)

// ParseJoinPolicy maps a configured policy name; unknown names fall back to
// JoinBeforeStart.
func ParseJoinPolicy(name string) JoinPolicy {
	if JoinPolicy(name) == JoinAnyTime {
		return JoinAnyTime
	}
	return JoinBeforeStart
}

// Recorder observes session activity, typically to export metrics.
type Recorder interface {
	MoveRecorded(rules string, violation game.Violation)
	UpdatePublished(kind UpdateType)
	Merged(applied bool)
}

type nopRecorder struct{}

func (nopRecorder) MoveRecorded(string, game.Violation) {}
func (nopRecorder) UpdatePublished(UpdateType)          {}
func (nopRecorder) Merged(bool)                         {}

type Option func(*Session)

func WithDeriver(d signing.Deriver) Option {
	return func(s *Session) { s.deriver = d }
}

func WithJoinPolicy(p JoinPolicy) Option {
	return func(s *Session) { s.policy = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithClock sets the source of move timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the authoritative state machine of one game in progress. Every
// mutating operation runs under a single lock, from precondition checks
// through rule evaluation to publishing the resulting updates.
type Session struct {
	cur      *Snapshot
	hub      *broadcast.Hub[Update]
	deriver  signing.Deriver
	policy   JoinPolicy
	recorder Recorder
	now      func() time.Time
	mutex    sync.Mutex
}

// New creates a WAITING session of g identified by url.
func New(g game.Game, url string, opts ...Option) *Session {
	return FromSnapshot(NewSnapshot(g, url), opts...)
}

// FromSnapshot makes snap the current state of a new authoritative
// session. A finished snapshot yields a session whose stream is already
// complete.
func FromSnapshot(snap *Snapshot, opts ...Option) *Session {
	s := &Session{
		cur:      snap,
		hub:      broadcast.NewHub[Update](),
		deriver:  signing.NewPBKDF2(),
		policy:   JoinBeforeStart,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if snap.status == state.Finished {
		s.hub.Complete()
	}
	return s
}

// Snapshot returns the current immutable state.
func (s *Session) Snapshot() *Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.cur
}

func (s *Session) Status() state.Status { return s.Snapshot().Status() }
func (s *Session) Version() int64       { return s.Snapshot().Version() }
func (s *Session) URL() string          { return s.Snapshot().URL() }
func (s *Session) Game() game.Game      { return s.Snapshot().Game() }

// Subscribe attaches an observer to the update stream. There is no replay:
// only updates published afterwards are delivered.
func (s *Session) Subscribe() *broadcast.Subscription[Update] {
	return s.hub.Subscribe()
}

// Join seats player. Late joiners under JoinAnyTime receive their deck
// immediately.
func (s *Session) Join(player game.Player) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur := s.cur
	if cur.Seated(player) {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, player)
	}
	if !cur.HasEmptySeat() {
		return fmt.Errorf("%w: %d of %d seats taken", ErrNoSeatsAvailable, len(cur.players), cur.game.Rules.MaxPlayers())
	}
	if cur.status != state.Waiting && (s.policy != JoinAnyTime || cur.status == state.Finished) {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, cur.status)
	}

	next := cur.clone()
	next.players = cur.withPlayer(player)
	if cur.status != state.Waiting {
		deck, err := cur.game.Rules.PrepareDeck(next, player)
		if err != nil {
			return fmt.Errorf("prepare deck for %s: %w", player, err)
		}
		next.decks = cur.withDeck(player.Username, deck)
	}

	s.cur = next
	logger.Log.Debugf("%s joined %s", player, next)
	s.publish(Update{Snapshot: next, Type: PlayerUpdate})
	return nil
}

// Start deals decks, hands the turn to the first seated player and moves
// the session to IN_PROGRESS.
func (s *Session) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur := s.cur
	if cur.status != state.Waiting {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, cur.status)
	}
	if !cur.CanStart() {
		return fmt.Errorf("%w: %d seated, %d..%d required", ErrNotEnoughPlayers,
			len(cur.players), cur.game.Rules.MinPlayers(), cur.game.Rules.MaxPlayers())
	}

	decks := make(map[string]game.Deck, len(cur.players))
	for _, p := range cur.players {
		deck, err := cur.game.Rules.PrepareDeck(cur, p)
		if err != nil {
			return fmt.Errorf("prepare deck for %s: %w", p, err)
		}
		decks[p.Username] = deck
	}

	next := cur.clone()
	next.decks = decks
	next.onTurn, next.hasTurn = cur.players[0], true
	next.status = state.InProgress

	s.cur = next
	logger.Log.Infof("%s started with %d players", next, len(next.players))
	s.publish(Update{Snapshot: next, Type: StatusUpdate})
	return nil
}

// Suspend pauses an IN_PROGRESS game.
func (s *Session) Suspend() error {
	return s.transition(state.InProgress, state.Suspended, ErrNotInProgress)
}

// Resume continues a SUSPENDED game.
func (s *Session) Resume() error {
	return s.transition(state.Suspended, state.InProgress, ErrNotSuspended)
}

func (s *Session) transition(from, to state.Status, wrong error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur := s.cur
	if cur.status != from {
		return fmt.Errorf("%w: %s", wrong, cur.status)
	}

	next := cur.clone()
	next.status = to

	s.cur = next
	s.publish(Update{Snapshot: next, Type: StatusUpdate})
	return nil
}

// SignWith attaches or replaces the secret placements must be signed with.
// It bumps the round, so keys handed out earlier stop matching. Finished
// sessions ignore it.
func (s *Session) SignWith(secret string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cur.status == state.Finished {
		return
	}
	next := s.cur.clone()
	next.key = secret
	s.cur = next
}

// KeyFor derives the key player must attach to a placement submitted in
// the current round. Unsigned sessions return an empty key.
func (s *Session) KeyFor(player game.Player) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.keyFor(s.cur, player)
}

func (s *Session) keyFor(cur *Snapshot, player game.Player) (string, error) {
	if cur.key == "" {
		return "", nil
	}
	key, err := s.deriver.Derive(player.Username, cur.key, cur.version)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return key, nil
}

// NewPlacement builds a placement signed for the current round. A nil
// source makes it a drop.
func (s *Session) NewPlacement(token game.Token, player game.Player, source *game.Position, destination game.Position) (game.Placement, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p := game.Drop(token, player, destination)
	if source != nil {
		p = game.Shift(token, player, *source, destination)
	}
	key, err := s.keyFor(s.cur, player)
	if err != nil {
		return game.Placement{}, err
	}
	if key != "" {
		p = p.Sign(key)
		p.Round = s.cur.version
	}
	return p, nil
}

// Play submits a placement. Rule violations are not errors: they come back
// as a rejected Move and, unless the game is already over, are recorded in
// the ledger. Errors are reserved for failures of the session itself, such
// as a broken signing setup or rules that cannot evaluate.
func (s *Session) Play(p game.Placement) (game.Move, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur := s.cur
	rulesID := cur.game.Rules.ID()

	if cur.status == state.Finished {
		s.recorder.MoveRecorded(rulesID, game.GameOver)
		return game.Move{Placement: p, Violation: game.GameOver, Timestamp: s.now()}, nil
	}

	violation, err := s.check(cur, p)
	if err != nil {
		logger.Log.Errorf("%s cannot verify %s: %v", cur, p, err)
		s.hub.Fail(err)
		return game.Move{}, err
	}
	if violation != "" {
		return s.reject(cur, game.Move{Placement: p, Violation: violation}), nil
	}

	result, err := cur.game.Rules.Evaluate(cur, p)
	if err != nil {
		return game.Move{}, fmt.Errorf("evaluate %s: %w", p, err)
	}
	if !result.Accepted() {
		return s.reject(cur, result.Move), nil
	}
	return s.accept(cur, p, result)
}

// check runs the generic checks every placement must pass before the
// rules see it. The first failing check wins.
func (s *Session) check(cur *Snapshot, p game.Placement) (game.Violation, error) {
	switch cur.status {
	case state.Waiting:
		return game.GameNotStartedYet, nil
	case state.Suspended:
		return game.GameSuspended, nil
	}

	if cur.key != "" {
		if p.Key == "" {
			return game.KeyMissing, nil
		}
		expected, err := s.keyFor(cur, p.Player)
		if err != nil {
			return "", err
		}
		if p.Key != expected {
			return game.KeyMismatch, nil
		}
	}

	if onTurn, ok := cur.PlayerOnTurn(); ok && !onTurn.Is(p.Player) {
		return game.NotYourTurn, nil
	}
	if !s.holdsToken(cur, p) {
		return game.IllegalToken, nil
	}
	if cur.board.Occupied(p.Destination) {
		return game.PositionAlreadyTaken, nil
	}
	if !cur.board.Contains(p.Destination) {
		return game.TokenNotAllowedOnGivenPosition, nil
	}
	return "", nil
}

// holdsToken reports whether the player may play the token: drops come
// from the player's deck, shifts move the player's own token on the board.
func (s *Session) holdsToken(cur *Snapshot, p game.Placement) bool {
	if p.IsDrop() {
		return cur.Deck(p.Player).Contains(p.Token)
	}
	on, ok := cur.board.At(*p.Source)
	return ok && on.Token == p.Token && on.Player.Is(p.Player)
}

func (s *Session) reject(cur *Snapshot, move game.Move) game.Move {
	move.Timestamp = s.now()

	next := cur.clone()
	next.moves = cur.withMove(move)

	s.cur = next
	s.recorder.MoveRecorded(cur.game.Rules.ID(), move.Violation)
	logger.Log.Debugf("%s rejected: %s", next, move)
	s.publish(Update{Snapshot: next, Type: MoveUpdate})
	return move
}

func (s *Session) accept(cur *Snapshot, p game.Placement, result game.EvaluationResult) (game.Move, error) {
	board, err := cur.board.Place(p)
	if err != nil {
		return game.Move{}, fmt.Errorf("%w: %v", ErrIllegalOutcome, err)
	}

	status := cur.status
	if result.NextStatus != "" && result.NextStatus != status {
		if err := state.Lifecycle.Check(status, result.NextStatus); err != nil {
			return game.Move{}, fmt.Errorf("%w: %v", ErrIllegalOutcome, err)
		}
		status = result.NextStatus
	}

	move := result.Move
	move.Timestamp = s.now()

	next := cur.clone()
	next.board = board
	next.scores = cur.withScores(result.ScoreDeltas)
	if p.IsDrop() {
		next.decks = cur.withDeck(p.Player.Username, cur.Deck(p.Player).Remove(p.Token))
	}
	if result.NextPlayer.Username != "" {
		next.onTurn, next.hasTurn = result.NextPlayer, true
	}
	next.status = status
	next.moves = cur.withMove(move)

	s.cur = next
	s.recorder.MoveRecorded(cur.game.Rules.ID(), "")
	s.publish(Update{Snapshot: next, Type: MoveUpdate})
	if status != cur.status {
		logger.Log.Infof("%s is now %s", next, status)
		s.publish(Update{Snapshot: next, Type: StatusUpdate})
	}
	return move, nil
}

// Merge replaces the current state with snap when snap is strictly newer.
// Stale or duplicate snapshots are ignored. The rules of the live game are
// kept when snap describes the same rule set, so a snapshot loaded with
// stub rules cannot disable evaluation.
func (s *Session) Merge(snap *Snapshot) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur := s.cur
	if cur.status == state.Finished || snap.version <= cur.version {
		s.recorder.Merged(false)
		return false
	}

	next := adopt(cur, snap)
	s.cur = next
	s.recorder.Merged(true)
	if u, ok := Diff(cur, next); ok {
		s.publish(u)
	}
	if next.status == state.Finished {
		s.hub.Complete()
	}
	return true
}

// adopt returns incoming, keeping the local rules when both describe the
// same rule set.
func adopt(cur, incoming *Snapshot) *Snapshot {
	if incoming.game.Is(cur.game) && incoming.game.Rules.ID() == cur.game.Rules.ID() {
		next := *incoming
		next.game.Rules = cur.game.Rules
		return &next
	}
	return incoming
}

func (s *Session) publish(u Update) {
	s.hub.Publish(u)
	s.recorder.UpdatePublished(u.Type)
	if u.Finishing() {
		s.hub.Complete()
	}
}
