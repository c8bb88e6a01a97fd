package session

import (
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/state"
)

// Snapshot is one immutable version of a session. Sessions replace their
// snapshot wholesale on every mutation, so a *Snapshot handed out once
// never changes and can be read without locks. It implements game.View.
type Snapshot struct {
	version int64
	game    game.Game
	board   game.Board
	status  state.Status
	players []game.Player
	onTurn  game.Player
	hasTurn bool
	url     string
	moves   []game.Move
	decks   map[string]game.Deck
	scores  map[string]int
	key     string
}

// NewSnapshot returns the first version of a session of g: WAITING, no
// players, and the board prepared by the rules.
func NewSnapshot(g game.Game, url string) *Snapshot {
	return &Snapshot{
		version: 1,
		game:    g,
		board:   g.Rules.PrepareBoard(),
		status:  state.Waiting,
		url:     url,
		decks:   map[string]game.Deck{},
		scores:  map[string]int{},
	}
}

// clone returns a shallow copy with the version bumped. Callers replace,
// never modify, the slices and maps they change.
func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.version++
	return &next
}

func (s *Snapshot) Version() int64         { return s.version }
func (s *Snapshot) Round() int64           { return s.version }
func (s *Snapshot) Game() game.Game        { return s.game }
func (s *Snapshot) Board() game.Board      { return s.board }
func (s *Snapshot) Status() state.Status   { return s.status }
func (s *Snapshot) URL() string            { return s.url }
func (s *Snapshot) Signed() bool           { return s.key != "" }
func (s *Snapshot) Rules() game.Rules      { return s.game.Rules }
func (s *Snapshot) Players() []game.Player { return append([]game.Player(nil), s.players...) }
func (s *Snapshot) Moves() []game.Move     { return append([]game.Move(nil), s.moves...) }

func (s *Snapshot) PlayerOnTurn() (game.Player, bool) {
	return s.onTurn, s.hasTurn
}

// Deck returns the player's deck, empty for unknown players.
func (s *Snapshot) Deck(player game.Player) game.Deck {
	return s.decks[player.Username]
}

func (s *Snapshot) Score(player game.Player) int {
	return s.scores[player.Username]
}

// Seated reports whether player holds a seat.
func (s *Snapshot) Seated(player game.Player) bool {
	return game.IndexOf(s.players, player) >= 0
}

func (s *Snapshot) HasEmptySeat() bool {
	return len(s.players) < s.game.Rules.MaxPlayers()
}

func (s *Snapshot) CanStart() bool {
	n := len(s.players)
	return n >= s.game.Rules.MinPlayers() && n <= s.game.Rules.MaxPlayers()
}

// LastMove returns the latest ledger entry.
func (s *Snapshot) LastMove() (game.Move, bool) {
	if len(s.moves) == 0 {
		return game.Move{}, false
	}
	return s.moves[len(s.moves)-1], true
}

func (s *Snapshot) withPlayer(p game.Player) []game.Player {
	players := make([]game.Player, 0, len(s.players)+1)
	players = append(players, s.players...)
	return append(players, p)
}

// withMove appends m to the ledger. A rejection directly following a
// rejection by the same player replaces it.
func (s *Snapshot) withMove(m game.Move) []game.Move {
	moves := make([]game.Move, 0, len(s.moves)+1)
	moves = append(moves, s.moves...)
	if last, ok := s.LastMove(); ok && m.Rejected() && last.Rejected() &&
		last.Placement.Player.Is(m.Placement.Player) {
		moves[len(moves)-1] = m
		return moves
	}
	return append(moves, m)
}

func (s *Snapshot) withDeck(username string, d game.Deck) map[string]game.Deck {
	decks := make(map[string]game.Deck, len(s.decks)+1)
	for k, v := range s.decks {
		decks[k] = v
	}
	decks[username] = d
	return decks
}

func (s *Snapshot) withScores(deltas map[string]int) map[string]int {
	scores := make(map[string]int, len(s.scores)+len(deltas))
	for k, v := range s.scores {
		scores[k] = v
	}
	for k, v := range deltas {
		scores[k] += v
	}
	return scores
}

func (s *Snapshot) String() string {
	if s.url == "" {
		return "Unidentified session of " + s.game.String()
	}
	return "Session: " + s.url + " of " + s.game.String()
}

func samePlayers(a, b []game.Player) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Is(b[i]) {
			return false
		}
	}
	return true
}

func sameMoves(a, b []game.Move) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
