// models/models.go
package models

import (
	"time"

	"github.com/wfunc/playerhook/session"
)

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	RulesType string   `json:"rulesType"`
	Status    string   `json:"status"`
	Players   []string `json:"players"`
	Version   int64    `json:"version"`
}

// GameResult is the archived outcome of a finished session.
type GameResult struct {
	URL        string         `json:"url"`
	RulesType  string         `json:"rulesType"`
	Players    []string       `json:"players"`
	Scores     map[string]int `json:"scores"`
	Moves      int            `json:"moves"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Summarize builds the listing view of snap.
func Summarize(snap *session.Snapshot) SessionSummary {
	players := snap.Players()
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Username
	}
	return SessionSummary{
		URL:       snap.URL(),
		Title:     snap.Game().Title,
		RulesType: snap.Rules().ID(),
		Status:    snap.Status().String(),
		Players:   names,
		Version:   snap.Version(),
	}
}

// ResultOf builds the archived outcome of rec.
func ResultOf(rec session.Record, finishedAt time.Time) GameResult {
	names := make([]string, len(rec.Players))
	for i, p := range rec.Players {
		names[i] = p.Username
	}
	scores := make(map[string]int, len(rec.Scores))
	for k, v := range rec.Scores {
		scores[k] = v
	}
	return GameResult{
		URL:        rec.URL,
		RulesType:  rec.Game.Rules.Type,
		Players:    names,
		Scores:     scores,
		Moves:      len(rec.PlayedMoves),
		FinishedAt: finishedAt,
	}
}
