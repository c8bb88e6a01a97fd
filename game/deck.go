package game

// Deck is a player's inventory: face-up playable tokens plus face-down
// secret tokens. Decks are immutable.
type Deck struct {
	tokens []Token
	secret []Token
}

// NewDeck copies the given token slices into a new deck.
func NewDeck(tokens, secret []Token) Deck {
	return Deck{
		tokens: append([]Token(nil), tokens...),
		secret: append([]Token(nil), secret...),
	}
}

// DeckOf returns a deck with the given playable tokens.
func DeckOf(tokens ...Token) Deck {
	return NewDeck(tokens, nil)
}

// SameTokens returns a deck of total copies of t.
func SameTokens(t Token, total int) Deck {
	tokens := make([]Token, total)
	for i := range tokens {
		tokens[i] = t
	}
	return Deck{tokens: tokens}
}

// Tokens returns a copy of the playable tokens.
func (d Deck) Tokens() []Token {
	return append([]Token(nil), d.tokens...)
}

// SecretTokens returns a copy of the secret tokens.
func (d Deck) SecretTokens() []Token {
	return append([]Token(nil), d.secret...)
}

// Total is the number of tokens still available, playable and secret.
func (d Deck) Total() int {
	return len(d.tokens) + len(d.secret)
}

// Empty reports whether no playable token remains.
func (d Deck) Empty() bool {
	return len(d.tokens) == 0
}

// Contains reports whether t is currently playable.
func (d Deck) Contains(t Token) bool {
	return containsToken(d.tokens, t)
}

// Remove returns a deck without the first playable t, or d itself when t is
// not playable.
func (d Deck) Remove(t Token) Deck {
	for i, candidate := range d.tokens {
		if candidate == t {
			tokens := make([]Token, 0, len(d.tokens)-1)
			tokens = append(tokens, d.tokens[:i]...)
			tokens = append(tokens, d.tokens[i+1:]...)
			return Deck{tokens: tokens, secret: d.secret}
		}
	}
	return d
}

// Redacted hides the secret tokens behind Hidden.
func (d Deck) Redacted() Deck {
	secret := make([]Token, len(d.secret))
	for i := range secret {
		secret[i] = Hidden
	}
	return Deck{tokens: d.tokens, secret: secret}
}

func (d Deck) Equal(o Deck) bool {
	return equalTokens(d.tokens, o.tokens) && equalTokens(d.secret, o.secret)
}

func equalTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
