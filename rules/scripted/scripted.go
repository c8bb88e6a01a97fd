// Package scripted loads rule sets written in Lua.
//
// A script declares the globals id, description, min_players and
// max_players, and the functions
//
//	prepare_board()                -> {first_row, first_column, width, height}
//	prepare_deck(view, username)   -> {tokens = {...}, secret = {...}}
//	evaluate(view, placement)      -> {violation, scores, next_status, next_player}
//
// Every call runs in a fresh interpreter, so scripts cannot keep state
// between evaluations.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/state"
)

var (
	ErrScript          = errors.New("script failed")
	ErrMissingFunction = errors.New("script function not defined")
	ErrBadResult       = errors.New("script returned an unusable value")
)

const DefaultTimeout = time.Second

// Rules is a game.Rules backed by a compiled Lua chunk.
type Rules struct {
	name        string
	proto       *lua.FunctionProto
	timeout     time.Duration
	id          string
	description string
	minPlayers  int
	maxPlayers  int
}

// Compile parses source and reads the rule set's identity from its globals.
func Compile(name, source string, timeout time.Duration) (*Rules, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrScript, name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", ErrScript, name, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Rules{name: name, proto: proto, timeout: timeout}
	err = r.run(func(L *lua.LState) error {
		r.id = lua.LVAsString(L.GetGlobal("id"))
		r.description = lua.LVAsString(L.GetGlobal("description"))
		r.minPlayers = int(lua.LVAsNumber(L.GetGlobal("min_players")))
		r.maxPlayers = int(lua.LVAsNumber(L.GetGlobal("max_players")))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.id == "" {
		return nil, fmt.Errorf("%w: %s does not set id", ErrScript, name)
	}
	if r.minPlayers < 1 || r.maxPlayers < r.minPlayers {
		return nil, fmt.Errorf("%w: %s: %w", ErrScript, name, game.ErrInvalidPlayerRange)
	}
	return r, nil
}

// Load compiles the script at path.
func Load(path string, timeout time.Duration) (*Rules, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(filepath.Base(path), string(source), timeout)
}

// RegisterDir registers every *.lua file in dir. Scripts that fail to load
// are logged and skipped.
func RegisterDir(reg *game.RuleRegistry, dir string, timeout time.Duration) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return 0, err
	}
	registered := 0
	for _, path := range paths {
		r, err := Load(path, timeout)
		if err != nil {
			logger.Log.Warnf("Skipping rules script %s: %v", path, err)
			continue
		}
		if err := reg.Register(r.ID(), func() game.Rules { return r }); err != nil {
			logger.Log.Warnf("Skipping rules script %s: %v", path, err)
			continue
		}
		logger.Log.Infof("Registered scripted rules %s from %s", r.ID(), path)
		registered++
	}
	return registered, nil
}

func (r *Rules) ID() string          { return r.id }
func (r *Rules) Description() string { return r.description }
func (r *Rules) MinPlayers() int     { return r.minPlayers }
func (r *Rules) MaxPlayers() int     { return r.maxPlayers }

// PrepareBoard calls prepare_board. A script that fails here yields a
// single-cell board and a logged error, since the contract has no error
// return for boards.
func (r *Rules) PrepareBoard() game.Board {
	var board game.Board
	err := r.call("prepare_board", func(ret lua.LValue) error {
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: prepare_board returned %s", ErrBadResult, ret.Type())
		}
		b, err := game.NewBoard(intField(t, "first_row"), intField(t, "first_column"), intField(t, "width"), intField(t, "height"))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadResult, err)
		}
		board = b
		return nil
	})
	if err != nil {
		logger.Log.Errorf("Rules %s cannot prepare a board: %v", r.id, err)
		return game.Square(1)
	}
	return board
}

func (r *Rules) PrepareDeck(view game.View, player game.Player) (game.Deck, error) {
	var deck game.Deck
	err := r.call("prepare_deck", func(ret lua.LValue) error {
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: prepare_deck returned %s", ErrBadResult, ret.Type())
		}
		deck = game.NewDeck(tokens(t.RawGetString("tokens")), tokens(t.RawGetString("secret")))
		return nil
	}, func(L *lua.LState) lua.LValue { return viewTable(L, view) }, func(L *lua.LState) lua.LValue { return lua.LString(player.Username) })
	return deck, err
}

func (r *Rules) Evaluate(view game.View, p game.Placement) (game.EvaluationResult, error) {
	var result game.EvaluationResult
	err := r.call("evaluate", func(ret lua.LValue) error {
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: evaluate returned %s", ErrBadResult, ret.Type())
		}
		res, err := decodeResult(view, p, t)
		result = res
		return err
	}, func(L *lua.LState) lua.LValue { return viewTable(L, view) }, func(L *lua.LState) lua.LValue { return placementTable(L, p) })
	return result, err
}

func (r *Rules) String() string {
	return fmt.Sprintf("scripted rules %s (%s)", r.id, r.name)
}

// run executes the chunk in a fresh interpreter bounded by the timeout and
// hands the interpreter to fn.
func (r *Rules) run(fn func(L *lua.LState) error) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openLibs(L)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(r.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScript, r.name, err)
	}
	return fn(L)
}

// openLibs opens the libraries scripts may use. io, os and package stay
// closed.
func openLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// call invokes the global function name with the arguments built by args
// and passes its single return value to decode.
func (r *Rules) call(name string, decode func(lua.LValue) error, args ...func(*lua.LState) lua.LValue) error {
	return r.run(func(L *lua.LState) error {
		fn, ok := L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrMissingFunction, name, r.name)
		}
		values := make([]lua.LValue, len(args))
		for i, arg := range args {
			values[i] = arg(L)
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, values...); err != nil {
			return fmt.Errorf("%w: %s in %s: %v", ErrScript, name, r.name, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		return decode(ret)
	})
}

func decodeResult(view game.View, p game.Placement, t *lua.LTable) (game.EvaluationResult, error) {
	if v := lua.LVAsString(t.RawGetString("violation")); v != "" {
		return game.Reject(p, game.Violation(v)), nil
	}

	result := game.Accept(p)
	if scores, ok := t.RawGetString("scores").(*lua.LTable); ok {
		var err error
		scores.ForEach(func(k, v lua.LValue) {
			player, found := lookup(view, lua.LVAsString(k))
			if !found {
				err = fmt.Errorf("%w: score for %s", game.ErrUnknownPlayer, k)
				return
			}
			result = result.WithScore(player, int(lua.LVAsNumber(v)))
		})
		if err != nil {
			return game.EvaluationResult{}, err
		}
	}
	if name := lua.LVAsString(t.RawGetString("next_status")); name != "" {
		status, err := state.Parse(name)
		if err != nil {
			return game.EvaluationResult{}, fmt.Errorf("%w: %v", ErrBadResult, err)
		}
		result = result.WithNextStatus(status)
	}
	if name := lua.LVAsString(t.RawGetString("next_player")); name != "" {
		player, found := lookup(view, name)
		if !found {
			return game.EvaluationResult{}, fmt.Errorf("%w: next player %s", game.ErrUnknownPlayer, name)
		}
		result = result.WithNextPlayer(player)
	}
	return result, nil
}

func lookup(view game.View, username string) (game.Player, bool) {
	for _, p := range view.Players() {
		if p.Username == username {
			return p, true
		}
	}
	return game.Player{}, false
}

func intField(t *lua.LTable, name string) int {
	return int(lua.LVAsNumber(t.RawGetString(name)))
}

func tokens(v lua.LValue) []game.Token {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	out := make([]game.Token, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		out = append(out, game.Token(lua.LVAsString(t.RawGetInt(i))))
	}
	return out
}
