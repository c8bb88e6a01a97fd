package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/broadcast"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/session"
)

var (
	alice = game.NewPlayer("alice")
	bob   = game.NewPlayer("bob")
	carol = game.NewPlayer("carol")

	epoch = time.UnixMilli(1_700_000_000_000)
)

func fixedClock() time.Time { return epoch }

func pos(row, column int) game.Position {
	return game.Position{Row: row, Column: column}
}

// --- Rules ---

// fakeRules deals the same deck to everyone and accepts every placement,
// passing the turn round-robin. evaluate overrides the default judgement.
type fakeRules struct {
	min, max int
	size     int
	deck     game.Deck
	evaluate func(game.View, game.Placement) game.EvaluationResult
}

func newFakeRules() *fakeRules {
	return &fakeRules{
		min:  2,
		max:  3,
		size: 3,
		deck: game.NewDeck([]game.Token{"a", "b", "c"}, []game.Token{"s"}),
	}
}

func (r *fakeRules) ID() string               { return "fake" }
func (r *fakeRules) Description() string      { return "fake rules" }
func (r *fakeRules) MinPlayers() int          { return r.min }
func (r *fakeRules) MaxPlayers() int          { return r.max }
func (r *fakeRules) PrepareBoard() game.Board { return game.Square(r.size) }

func (r *fakeRules) PrepareDeck(game.View, game.Player) (game.Deck, error) {
	return r.deck, nil
}

func (r *fakeRules) Evaluate(view game.View, p game.Placement) (game.EvaluationResult, error) {
	if r.evaluate != nil {
		return r.evaluate(view, p), nil
	}
	players := view.Players()
	next := players[(game.IndexOf(players, p.Player)+1)%len(players)]
	return game.Accept(p).WithNextPlayer(next), nil
}

func newGame(t *testing.T, rules game.Rules) game.Game {
	t.Helper()
	g, err := game.NewGame("Test Game", "for tests", "http://games.test/test", rules)
	require.NoError(t, err)
	return g
}

// started returns an IN_PROGRESS session with the given players seated.
func started(t *testing.T, rules game.Rules, opts []session.Option, players ...game.Player) *session.Session {
	t.Helper()
	s := session.New(newGame(t, rules), "http://sessions.test/1", append([]session.Option{session.WithClock(fixedClock)}, opts...)...)
	for _, p := range players {
		require.NoError(t, s.Join(p))
	}
	require.NoError(t, s.Start())
	return s
}

// drain collects every update until the subscription closes.
func drain(t *testing.T, sub *broadcast.Subscription[session.Update]) []session.UpdateType {
	t.Helper()
	var types []session.UpdateType
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return types
			}
			types = append(types, u.Type)
		case <-timeout:
			t.Fatalf("update stream did not complete, got %v", types)
		}
	}
}

// nextUpdate waits for a single update.
func nextUpdate(t *testing.T, sub *broadcast.Subscription[session.Update]) session.Update {
	t.Helper()
	select {
	case u, ok := <-sub.Updates():
		require.True(t, ok, "stream closed unexpectedly")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
	return session.Update{}
}

// --- Forwarder ---

type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) Forward(ctx context.Context, url string, p game.Placement) error {
	args := m.Called(ctx, url, p)
	return args.Error(0)
}

// --- Recorder ---

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) MoveRecorded(rules string, violation game.Violation) {
	m.Called(rules, violation)
}

func (m *MockRecorder) UpdatePublished(kind session.UpdateType) {
	m.Called(kind)
}

func (m *MockRecorder) Merged(applied bool) {
	m.Called(applied)
}
