package session

import (
	"fmt"

	"github.com/wfunc/playerhook/state"
)

// UpdateType tells observers which part of a session changed.
type UpdateType string

const (
	MoveUpdate   UpdateType = "MOVE"
	PlayerUpdate UpdateType = "PLAYER"
	StatusUpdate UpdateType = "STATUS"
)

// Update carries the snapshot produced by a mutation.
type Update struct {
	Snapshot *Snapshot
	Type     UpdateType
}

// Finishing reports whether u is the update that ended the session.
func (u Update) Finishing() bool {
	return u.Type == StatusUpdate && u.Snapshot.Status() == state.Finished
}

func (u Update) String() string {
	return fmt.Sprintf("Update: %s for %s", u.Type, u.Snapshot)
}

// Diff classifies the change from before to after: a status change wins
// over a seating change, which wins over a ledger change. It reports false
// when none of them changed.
func Diff(before, after *Snapshot) (Update, bool) {
	switch {
	case before.status != after.status:
		return Update{Snapshot: after, Type: StatusUpdate}, true
	case !samePlayers(before.players, after.players):
		return Update{Snapshot: after, Type: PlayerUpdate}, true
	case !sameMoves(before.moves, after.moves):
		return Update{Snapshot: after, Type: MoveUpdate}, true
	}
	return Update{}, false
}
