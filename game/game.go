package game

import "fmt"

// Game describes a game type. Two games are the same game iff their titles
// match.
type Game struct {
	Title       string
	Description string
	URL         string
	Rules       Rules
}

// NewGame validates that rules are present and seat at least one player.
// Stub rules carry whatever range a record described and are not checked.
func NewGame(title, description, url string, rules Rules) (Game, error) {
	if rules == nil {
		return Game{}, fmt.Errorf("%w: %q", ErrNoRules, title)
	}
	if _, stub := rules.(StubRules); stub {
		return Game{Title: title, Description: description, URL: url, Rules: rules}, nil
	}
	if rules.MinPlayers() < 1 || rules.MinPlayers() > rules.MaxPlayers() {
		return Game{}, fmt.Errorf("%w: %d..%d", ErrInvalidPlayerRange, rules.MinPlayers(), rules.MaxPlayers())
	}
	return Game{Title: title, Description: description, URL: url, Rules: rules}, nil
}

// Is reports whether g and o are the same game type.
func (g Game) Is(o Game) bool {
	return g.Title == o.Title
}

func (g Game) String() string {
	return fmt.Sprintf("Game '%s'", g.Title)
}
