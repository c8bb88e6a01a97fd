package game

// Violation is the code of a rejected placement. The constants below are
// the generic codes; rule sets may use any other code for game-specific
// rejections.
type Violation string

const (
	NotYourTurn                    Violation = "NOT_YOUR_TURN"
	PositionAlreadyTaken           Violation = "POSITION_ALREADY_TAKEN"
	TokenNotAllowedOnGivenPosition Violation = "TOKEN_NOT_ALLOWED_ON_GIVEN_POSITION"
	IllegalToken                   Violation = "ILLEGAL_TOKEN"
	GameNotStartedYet              Violation = "GAME_NOT_STARTED_YET"
	GameOver                       Violation = "GAME_OVER"
	KeyMissing                     Violation = "KEY_MISSING"
	KeyMismatch                    Violation = "KEY_MISMATCH"
	GameSuspended                  Violation = "GAME_SUSPENDED"
)

var violationMessages = map[Violation]string{
	NotYourTurn:                    "This is not your turn!",
	PositionAlreadyTaken:           "The position given is already taken!",
	TokenNotAllowedOnGivenPosition: "You cannot place your token at given position!",
	IllegalToken:                   "You cannot play with this token!",
	GameNotStartedYet:              "Game hasn't started yet!",
	GameOver:                       "Game is over!",
	KeyMissing:                     "Session is signed but no player key is present",
	KeyMismatch:                    "Session key does not match",
	GameSuspended:                  "Game is suspended!",
}

// Code returns the violation code.
func (v Violation) Code() string {
	return string(v)
}

// Message is the human readable reason; unknown codes echo themselves.
func (v Violation) Message() string {
	if msg, ok := violationMessages[v]; ok {
		return msg
	}
	return string(v)
}

// Generic reports whether v is one of the engine's own codes.
func (v Violation) Generic() bool {
	_, ok := violationMessages[v]
	return ok
}
