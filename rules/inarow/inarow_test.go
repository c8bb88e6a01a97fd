package inarow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/rules/inarow"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
)

var (
	alice = game.NewPlayer("alice")
	bob   = game.NewPlayer("bob")
)

func at(row, column int) game.Position {
	return game.Position{Row: row, Column: column}
}

func newSession(t *testing.T, rules inarow.Rules) *session.Session {
	t.Helper()
	g, err := game.NewGame(inarow.Title, inarow.Description, "", rules)
	require.NoError(t, err)
	s := session.New(g, "http://sessions.test/ttt")
	require.NoError(t, s.Join(alice))
	require.NoError(t, s.Join(bob))
	require.NoError(t, s.Start())
	return s
}

func play(t *testing.T, s *session.Session, placements ...game.Placement) {
	t.Helper()
	for _, p := range placements {
		move, err := s.Play(p)
		require.NoError(t, err)
		require.False(t, move.Rejected(), "%s rejected with %s", p, move.Violation)
	}
}

func TestStandardVariants(t *testing.T) {
	tests := []struct {
		toWin int
		side  int
	}{
		{3, 8}, {4, 10}, {5, 13}, {6, 15},
	}
	for _, tc := range tests {
		rules := inarow.Standard(tc.toWin)
		assert.Equal(t, tc.side, rules.PrepareBoard().Width())
		assert.Equal(t, tc.side, rules.PrepareBoard().Height())
	}

	assert.Equal(t, "in-a-row/3", inarow.Standard(3).ID())
	assert.Equal(t, "in-a-row/3/3", inarow.New(3, 3).ID())
	assert.Contains(t, inarow.Standard(5).Description(), "5 tokens")
}

func TestRegister(t *testing.T) {
	reg := game.NewRuleRegistry()
	require.NoError(t, inarow.Register(reg))
	assert.Equal(t, []string{"in-a-row/3", "in-a-row/4", "in-a-row/5", "in-a-row/6"}, reg.IDs())

	rules, ok := reg.Lookup("in-a-row/4")
	require.True(t, ok)
	assert.Equal(t, 2, rules.MinPlayers())
	assert.Equal(t, 2, rules.MaxPlayers())
}

func TestPrepareDeck(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	snap := s.Snapshot()

	assert.True(t, snap.Deck(alice).Equal(game.SameTokens(inarow.Cross, 9)))
	assert.True(t, snap.Deck(bob).Equal(game.SameTokens(inarow.Circle, 9)))

	_, err := inarow.New(3, 3).PrepareDeck(snap, game.NewPlayer("carol"))
	assert.ErrorIs(t, err, game.ErrUnknownPlayer)
}

func TestWinLines(t *testing.T) {
	tests := []struct {
		name  string
		moves []game.Placement
	}{
		{"row", []game.Placement{
			game.Drop(inarow.Cross, alice, at(0, 0)),
			game.Drop(inarow.Circle, bob, at(1, 0)),
			game.Drop(inarow.Cross, alice, at(0, 2)),
			game.Drop(inarow.Circle, bob, at(1, 1)),
			game.Drop(inarow.Cross, alice, at(0, 1)),
		}},
		{"column", []game.Placement{
			game.Drop(inarow.Cross, alice, at(0, 0)),
			game.Drop(inarow.Circle, bob, at(0, 1)),
			game.Drop(inarow.Cross, alice, at(1, 0)),
			game.Drop(inarow.Circle, bob, at(1, 1)),
			game.Drop(inarow.Cross, alice, at(2, 0)),
		}},
		{"anti-diagonal", []game.Placement{
			game.Drop(inarow.Cross, alice, at(0, 2)),
			game.Drop(inarow.Circle, bob, at(0, 0)),
			game.Drop(inarow.Cross, alice, at(2, 0)),
			game.Drop(inarow.Circle, bob, at(0, 1)),
			game.Drop(inarow.Cross, alice, at(1, 1)),
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(t, inarow.New(3, 3))
			play(t, s, tc.moves...)

			snap := s.Snapshot()
			assert.Equal(t, state.Finished, snap.Status())
			assert.Equal(t, 1, snap.Score(alice))
			assert.Equal(t, 0, snap.Score(bob))
		})
	}
}

func TestTurnPassesToOpponent(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	play(t, s, game.Drop(inarow.Cross, alice, at(1, 1)))

	onTurn, ok := s.Snapshot().PlayerOnTurn()
	require.True(t, ok)
	assert.True(t, onTurn.Is(bob))
	assert.Equal(t, state.InProgress, s.Status())
}

func TestFullBoardIsADraw(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	// x o x
	// x o o
	// o x x
	play(t, s,
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(0, 1)),
		game.Drop(inarow.Cross, alice, at(0, 2)),
		game.Drop(inarow.Circle, bob, at(1, 1)),
		game.Drop(inarow.Cross, alice, at(1, 0)),
		game.Drop(inarow.Circle, bob, at(2, 0)),
		game.Drop(inarow.Cross, alice, at(2, 1)),
		game.Drop(inarow.Circle, bob, at(1, 2)),
	)
	assert.Equal(t, state.InProgress, s.Status())

	play(t, s, game.Drop(inarow.Cross, alice, at(2, 2)))
	snap := s.Snapshot()
	assert.Equal(t, state.Finished, snap.Status())
	assert.True(t, snap.Board().IsCompletelyFilled())
	assert.Equal(t, 0, snap.Score(alice))
	assert.Equal(t, 0, snap.Score(bob))
}

func TestLongerLineStillWins(t *testing.T) {
	s := newSession(t, inarow.New(3, 5))
	play(t, s,
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(4, 0)),
		game.Drop(inarow.Cross, alice, at(0, 1)),
		game.Drop(inarow.Circle, bob, at(4, 1)),
		game.Drop(inarow.Cross, alice, at(0, 3)),
		game.Drop(inarow.Circle, bob, at(3, 4)),
	)
	assert.Equal(t, state.InProgress, s.Status())

	play(t, s, game.Drop(inarow.Cross, alice, at(0, 2)))
	assert.Equal(t, state.Finished, s.Status())
	assert.Equal(t, 1, s.Snapshot().Score(alice))
}

func TestShiftDoesNotCountItsSource(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	play(t, s,
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(2, 2)),
		game.Drop(inarow.Cross, alice, at(0, 1)),
		game.Drop(inarow.Circle, bob, at(2, 1)),
	)

	play(t, s, game.Shift(inarow.Cross, alice, at(0, 1), at(0, 2)))
	snap := s.Snapshot()
	assert.Equal(t, state.InProgress, snap.Status())
	assert.Equal(t, 0, snap.Score(alice))
	assert.False(t, snap.Board().Occupied(at(0, 1)))
	assert.Equal(t, 4, snap.Board().Len())
}

func TestShiftCompletingALineWins(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	play(t, s,
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(2, 0)),
		game.Drop(inarow.Cross, alice, at(0, 1)),
		game.Drop(inarow.Circle, bob, at(1, 1)),
		game.Drop(inarow.Cross, alice, at(1, 2)),
		game.Drop(inarow.Circle, bob, at(2, 2)),
	)
	assert.Equal(t, state.InProgress, s.Status())

	play(t, s, game.Shift(inarow.Cross, alice, at(1, 2), at(0, 2)))
	assert.Equal(t, state.Finished, s.Status())
	assert.Equal(t, 1, s.Snapshot().Score(alice))
}

func TestShiftOnAlmostFullBoardIsNotADraw(t *testing.T) {
	s := newSession(t, inarow.New(3, 3))
	// x o x
	// x o o
	// o x .
	play(t, s,
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(0, 1)),
		game.Drop(inarow.Cross, alice, at(0, 2)),
		game.Drop(inarow.Circle, bob, at(1, 1)),
		game.Drop(inarow.Cross, alice, at(1, 0)),
		game.Drop(inarow.Circle, bob, at(2, 0)),
		game.Drop(inarow.Cross, alice, at(2, 1)),
		game.Drop(inarow.Circle, bob, at(1, 2)),
	)

	play(t, s, game.Shift(inarow.Cross, alice, at(2, 1), at(2, 2)))
	snap := s.Snapshot()
	assert.Equal(t, state.InProgress, snap.Status())
	assert.False(t, snap.Board().IsCompletelyFilled())
}
