package game

import "fmt"

// StubRules stands in for a rule set this process does not know. It can
// describe itself, so a session using it can be displayed and forwarded,
// but it cannot deal decks or judge placements.
type StubRules struct {
	Descriptor RulesDescriptor
}

func NewStubRules(desc RulesDescriptor) StubRules {
	return StubRules{Descriptor: desc}
}

func (s StubRules) ID() string          { return s.Descriptor.Type }
func (s StubRules) Description() string { return s.Descriptor.Description }
func (s StubRules) MinPlayers() int     { return s.Descriptor.MinPlayers }
func (s StubRules) MaxPlayers() int     { return s.Descriptor.MaxPlayers }

// PrepareBoard returns a 1x1 board; real dimensions arrive with the
// session record.
func (s StubRules) PrepareBoard() Board {
	return Square(1)
}

func (s StubRules) PrepareDeck(View, Player) (Deck, error) {
	return Deck{}, fmt.Errorf("%w: %s cannot prepare decks", ErrUnsupported, s.ID())
}

func (s StubRules) Evaluate(View, Placement) (EvaluationResult, error) {
	return EvaluationResult{}, fmt.Errorf("%w: %s cannot evaluate placements", ErrUnsupported, s.ID())
}
