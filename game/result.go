package game

import "github.com/wfunc/playerhook/state"

// EvaluationResult is what a rule set decides about a placement. A zero
// NextStatus keeps the current status.
type EvaluationResult struct {
	Move        Move
	ScoreDeltas map[string]int
	NextStatus  state.Status
	NextPlayer  Player
}

// Accept returns a result accepting p; the placer keeps the turn unless
// WithNextPlayer says otherwise.
func Accept(p Placement) EvaluationResult {
	return EvaluationResult{Move: Move{Placement: p}, NextPlayer: p.Player}
}

// Reject returns a result rejecting p with v.
func Reject(p Placement, v Violation) EvaluationResult {
	return EvaluationResult{Move: Move{Placement: p, Violation: v}, NextPlayer: p.Player}
}

// Accepted reports whether the result carries no violation.
func (r EvaluationResult) Accepted() bool {
	return !r.Move.Rejected()
}

// WithScore adds delta to player's score change.
func (r EvaluationResult) WithScore(player Player, delta int) EvaluationResult {
	scores := make(map[string]int, len(r.ScoreDeltas)+1)
	for k, v := range r.ScoreDeltas {
		scores[k] = v
	}
	scores[player.Username] += delta
	r.ScoreDeltas = scores
	return r
}

func (r EvaluationResult) WithNextPlayer(p Player) EvaluationResult {
	r.NextPlayer = p
	return r
}

func (r EvaluationResult) WithNextStatus(s state.Status) EvaluationResult {
	r.NextStatus = s
	return r
}

// Finish is WithNextStatus(state.Finished).
func (r EvaluationResult) Finish() EvaluationResult {
	return r.WithNextStatus(state.Finished)
}
