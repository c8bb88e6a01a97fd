package game

// Token is the symbol of a playable piece type. Tokens are equal iff their
// symbols match.
type Token string

// Hidden replaces tokens a viewer is not allowed to see.
const Hidden Token = "?"

func (t Token) Symbol() string {
	return string(t)
}

func containsToken(tokens []Token, t Token) bool {
	for _, candidate := range tokens {
		if candidate == t {
			return true
		}
	}
	return false
}
