package game

import "github.com/wfunc/playerhook/state"

// View is the read-only surface of a session handed to rules. It always
// describes the state before the placement under evaluation.
type View interface {
	Board() Board
	Players() []Player
	PlayerOnTurn() (Player, bool)
	Deck(player Player) Deck
	Score(player Player) int
	Status() state.Status
	Moves() []Move
	Round() int64
}

// Rules is the pluggable rule set of a game. Evaluate must be pure: it
// inspects the view and returns a result without touching any state.
type Rules interface {
	ID() string
	Description() string
	MinPlayers() int
	MaxPlayers() int
	PrepareBoard() Board
	PrepareDeck(view View, player Player) (Deck, error)
	Evaluate(view View, placement Placement) (EvaluationResult, error)
}

// RulesDescriptor is the serializable identity of a rule set.
type RulesDescriptor struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// Describe captures the descriptor of r.
func Describe(r Rules) RulesDescriptor {
	return RulesDescriptor{
		Type:        r.ID(),
		Description: r.Description(),
		MinPlayers:  r.MinPlayers(),
		MaxPlayers:  r.MaxPlayers(),
	}
}
