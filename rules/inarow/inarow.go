// Package inarow implements "N in a row" for two players: the first seat
// plays crosses, the second circles, and whoever lines up N of their tokens
// horizontally, vertically or diagonally wins.
package inarow

import (
	"fmt"
	"math"

	"github.com/wfunc/playerhook/game"
)

const (
	Cross  game.Token = "x"
	Circle game.Token = "o"

	Title       = "Tic Tac Toe"
	Description = "Create line of tokens to win"
)

// axes pairs opposite directions; a line runs through the destination along
// both halves of an axis.
var axes = [][2]game.Direction{
	{game.Down, game.Up},
	{game.Right, game.Left},
	{game.UpperLeft, game.LowerRight},
	{game.UpperRight, game.LowerLeft},
}

type Rules struct {
	toWin int
	size  int
}

// New returns rules requiring toWin tokens in a row on a size x size board.
func New(toWin, size int) Rules {
	return Rules{toWin: toWin, size: size}
}

// Standard returns the registered variant for toWin: the board side is
// toWin * 2.5 rounded half up.
func Standard(toWin int) Rules {
	return New(toWin, int(math.Round(float64(toWin)*2.5)))
}

// ID names the variant, e.g. "in-a-row/3". Non-standard board sizes carry
// the size as a suffix.
func (r Rules) ID() string {
	if r.size == Standard(r.toWin).size {
		return fmt.Sprintf("in-a-row/%d", r.toWin)
	}
	return fmt.Sprintf("in-a-row/%d/%d", r.toWin, r.size)
}

func (r Rules) Description() string {
	return fmt.Sprintf("Player who first place %d tokens in a vertical, horizontal or diagonal row wins", r.toWin)
}

func (r Rules) MinPlayers() int { return 2 }
func (r Rules) MaxPlayers() int { return 2 }

func (r Rules) PrepareBoard() game.Board {
	return game.Square(r.size)
}

func (r Rules) PrepareDeck(view game.View, player game.Player) (game.Deck, error) {
	seat := game.IndexOf(view.Players(), player)
	if seat < 0 {
		return game.Deck{}, fmt.Errorf("%w: %s", game.ErrUnknownPlayer, player)
	}
	token := Circle
	if seat == 0 {
		token = Cross
	}
	return game.SameTokens(token, view.Board().Capacity()), nil
}

func (r Rules) Evaluate(view game.View, placement game.Placement) (game.EvaluationResult, error) {
	result := game.Accept(placement)
	board := view.Board()

	for _, axis := range axes {
		if countAlong(board, placement, axis) >= r.toWin {
			return result.WithScore(placement.Player, 1).Finish(), nil
		}
	}

	for _, p := range view.Players() {
		if p.Is(placement.Player) {
			continue
		}
		result = result.WithNextPlayer(p)
		if view.Deck(p).Empty() {
			return result.Finish(), nil
		}
	}

	// the board in the view does not hold the placement yet; a shift
	// vacates a cell for the one it fills
	filled := board.Len()
	if placement.IsDrop() {
		filled++
	}
	if filled >= board.Capacity() {
		return result.Finish(), nil
	}
	return result, nil
}

// countAlong counts the run of the placed token through its destination.
// The source of a shift is empty once the placement lands.
func countAlong(board game.Board, placement game.Placement, axis [2]game.Direction) int {
	count := 1
	for _, d := range axis {
		pos := placement.Destination.At(d)
		for {
			if placement.Source != nil && pos == *placement.Source {
				break
			}
			other, ok := board.At(pos)
			if !ok || other.Token != placement.Token {
				break
			}
			count++
			pos = pos.At(d)
		}
	}
	return count
}

// Register adds the standard 3 to 6 in a row variants to reg.
func Register(reg *game.RuleRegistry) error {
	for toWin := 3; toWin <= 6; toWin++ {
		rules := Standard(toWin)
		if err := reg.Register(rules.ID(), func() game.Rules { return rules }); err != nil {
			return err
		}
	}
	return nil
}
