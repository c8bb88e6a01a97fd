package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
)

func TestMergeReplacesEveryField(t *testing.T) {
	rules := newFakeRules()
	s := started(t, rules, nil, alice, bob)
	old := s.Snapshot()

	ahead := session.FromSnapshot(old, session.WithClock(fixedClock))
	_, err := ahead.Play(game.Drop("a", alice, pos(0, 0)))
	require.NoError(t, err)
	_, err = ahead.Play(game.Drop("b", bob, pos(1, 1)))
	require.NoError(t, err)
	newer := ahead.Snapshot()

	sub := s.Subscribe()
	assert.True(t, s.Merge(newer))
	got := s.Snapshot()
	assert.Equal(t, newer.Version(), got.Version())
	assert.True(t, got.Board().Equal(newer.Board()))
	assert.Equal(t, newer.Moves(), got.Moves())
	assert.True(t, got.Deck(alice).Equal(newer.Deck(alice)))
	onTurn, _ := got.PlayerOnTurn()
	assert.True(t, onTurn.Is(alice))
	assert.Equal(t, session.MoveUpdate, nextUpdate(t, sub).Type)

	assert.False(t, s.Merge(old), "older snapshot is discarded")
	assert.False(t, s.Merge(newer), "duplicate snapshot is discarded")
	assert.Equal(t, newer.Version(), s.Version())
}

func TestMergeFinishedCompletesStream(t *testing.T) {
	rules := newFakeRules()
	rules.evaluate = func(_ game.View, p game.Placement) game.EvaluationResult {
		return game.Accept(p).Finish()
	}
	s := started(t, rules, nil, alice, bob)

	ahead := session.FromSnapshot(s.Snapshot())
	_, err := ahead.Play(game.Drop("a", alice, pos(0, 0)))
	require.NoError(t, err)

	sub := s.Subscribe()
	require.True(t, s.Merge(ahead.Snapshot()))
	assert.Equal(t, []session.UpdateType{session.StatusUpdate}, drain(t, sub))
	assert.Equal(t, state.Finished, s.Status())
}

func TestDiffPriority(t *testing.T) {
	s := session.New(newGame(t, newFakeRules()), "u")
	empty := s.Snapshot()
	require.NoError(t, s.Join(alice))
	joined := s.Snapshot()
	require.NoError(t, s.Join(bob))
	require.NoError(t, s.Start())
	startedSnap := s.Snapshot()

	u, ok := session.Diff(empty, startedSnap)
	require.True(t, ok)
	assert.Equal(t, session.StatusUpdate, u.Type)

	u, ok = session.Diff(empty, joined)
	require.True(t, ok)
	assert.Equal(t, session.PlayerUpdate, u.Type)

	_, ok = session.Diff(joined, joined)
	assert.False(t, ok)
}

func TestMirror(t *testing.T) {
	s := started(t, newFakeRules(), nil, alice, bob)
	fwd := &MockForwarder{}
	m := session.NewMirror(s.Snapshot(), fwd)
	sub := m.Subscribe()

	p := game.Drop("a", alice, pos(0, 0))
	fwd.On("Forward", mock.Anything, "http://sessions.test/1", p).Return(nil).Once()
	require.NoError(t, m.Play(context.Background(), p))
	assert.Equal(t, 0, m.Snapshot().Board().Len(), "the mirror waits for the authority")

	_, err := s.Play(p)
	require.NoError(t, err)
	assert.True(t, m.Merge(s.Snapshot()))
	assert.False(t, m.Merge(s.Snapshot()))
	assert.Equal(t, 1, m.Snapshot().Board().Len())
	assert.Equal(t, session.MoveUpdate, nextUpdate(t, sub).Type)

	boom := errors.New("connection refused")
	fwd.On("Forward", mock.Anything, "http://sessions.test/1", p).Return(boom).Once()
	assert.ErrorIs(t, m.Play(context.Background(), p), boom)

	fwd.AssertExpectations(t)
}

func TestMirrorWithoutAuthority(t *testing.T) {
	m := session.NewMirror(session.NewSnapshot(newGame(t, newFakeRules()), ""), &MockForwarder{})
	assert.ErrorIs(t, m.Play(context.Background(), game.Drop("a", alice, pos(0, 0))), session.ErrNoAuthority)
}
