package scripted

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wfunc/playerhook/game"
)

// viewTable exposes a session view to a script:
//
//	view.round, view.status, view.players, view.on_turn, view.scores, view.moves
//	view.board.{first_row, first_column, width, height, filled}
//	view.at(row, column)  -> token, username | nil
//	view.deck(username)   -> {tokens...}
func viewTable(L *lua.LState, view game.View) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("round", lua.LNumber(view.Round()))
	t.RawSetString("status", lua.LString(view.Status().String()))
	t.RawSetString("moves", lua.LNumber(len(view.Moves())))

	players := L.NewTable()
	scores := L.NewTable()
	for _, p := range view.Players() {
		players.Append(lua.LString(p.Username))
		scores.RawSetString(p.Username, lua.LNumber(view.Score(p)))
	}
	t.RawSetString("players", players)
	t.RawSetString("scores", scores)
	if onTurn, ok := view.PlayerOnTurn(); ok {
		t.RawSetString("on_turn", lua.LString(onTurn.Username))
	}

	board := view.Board()
	b := L.NewTable()
	b.RawSetString("first_row", lua.LNumber(board.FirstRow()))
	b.RawSetString("first_column", lua.LNumber(board.FirstColumn()))
	b.RawSetString("width", lua.LNumber(board.Width()))
	b.RawSetString("height", lua.LNumber(board.Height()))
	b.RawSetString("filled", lua.LNumber(board.Len()))
	t.RawSetString("board", b)

	t.RawSetString("at", L.NewFunction(func(L *lua.LState) int {
		pos := game.Position{Row: L.CheckInt(1), Column: L.CheckInt(2)}
		on, ok := board.At(pos)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(on.Token))
		L.Push(lua.LString(on.Player.Username))
		return 2
	}))
	t.RawSetString("deck", L.NewFunction(func(L *lua.LState) int {
		deck := view.Deck(game.NewPlayer(L.CheckString(1)))
		out := L.NewTable()
		for _, tok := range deck.Tokens() {
			out.Append(lua.LString(tok))
		}
		L.Push(out)
		return 1
	}))
	return t
}

// placementTable exposes a placement as
// {token, player, row, column, drop, source_row, source_column}.
func placementTable(L *lua.LState, p game.Placement) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("token", lua.LString(p.Token))
	t.RawSetString("player", lua.LString(p.Player.Username))
	t.RawSetString("row", lua.LNumber(p.Destination.Row))
	t.RawSetString("column", lua.LNumber(p.Destination.Column))
	t.RawSetString("drop", lua.LBool(p.IsDrop()))
	if !p.IsDrop() {
		t.RawSetString("source_row", lua.LNumber(p.Source.Row))
		t.RawSetString("source_column", lua.LNumber(p.Source.Column))
	}
	return t
}
