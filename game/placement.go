package game

import "fmt"

// Placement proposes putting Token on Destination on behalf of Player. A nil
// Source makes it a drop from the deck; otherwise the token moves from
// Source. Key signs the placement when the session requires it; Round, when
// non-zero, names the session round the key was derived for.
type Placement struct {
	Token       Token
	Player      Player
	Source      *Position
	Destination Position
	Key         string
	Round       int64
}

// Drop builds an unsigned placement of a deck token.
func Drop(token Token, player Player, destination Position) Placement {
	return Placement{Token: token, Player: player, Destination: destination}
}

// Shift builds an unsigned placement moving a token already on the board.
func Shift(token Token, player Player, source, destination Position) Placement {
	src := source
	return Placement{Token: token, Player: player, Source: &src, Destination: destination}
}

// IsDrop reports whether the token comes from the player's deck.
func (p Placement) IsDrop() bool {
	return p.Source == nil
}

// Sign returns a copy carrying key, or p itself when key is empty or
// already present.
func (p Placement) Sign(key string) Placement {
	if key == "" || key == p.Key {
		return p
	}
	signed := p
	signed.Key = key
	return signed
}

// Unsigned returns a copy without key or round.
func (p Placement) Unsigned() Placement {
	if p.Key == "" && p.Round == 0 {
		return p
	}
	unsigned := p
	unsigned.Key = ""
	unsigned.Round = 0
	return unsigned
}

func (p Placement) Equal(o Placement) bool {
	if (p.Source == nil) != (o.Source == nil) {
		return false
	}
	if p.Source != nil && *p.Source != *o.Source {
		return false
	}
	return p.Token == o.Token && p.Player.Is(o.Player) && p.Destination == o.Destination &&
		p.Key == o.Key && p.Round == o.Round
}

func (p Placement) String() string {
	if p.Source == nil {
		return fmt.Sprintf("%s placed %s on %s", p.Player, p.Token, p.Destination)
	}
	return fmt.Sprintf("%s moved %s from %s to %s", p.Player, p.Token, *p.Source, p.Destination)
}
