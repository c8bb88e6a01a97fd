// models/gorm_models.go
package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/playerhook/session"
)

// GormSession is the latest persisted record of a session, keyed by its URL.
type GormSession struct {
	ID        uint           `gorm:"primaryKey"`
	URL       string         `gorm:"uniqueIndex;not null"`
	RulesType string         `gorm:"index;not null"`
	Status    string         `gorm:"index;not null"`
	Version   int64          `gorm:"not null"`
	Record    session.Record `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GormSession) TableName() string { return "sessions" }

// GormGameResult archives the outcome of a finished session.
type GormGameResult struct {
	ID         uint           `gorm:"primaryKey"`
	URL        string         `gorm:"index;not null"`
	RulesType  string         `gorm:"not null"`
	Players    pq.StringArray `gorm:"type:text[];not null"`
	Scores     map[string]int `gorm:"serializer:json;type:jsonb;not null"`
	Moves      int            `gorm:"default:0"`
	FinishedAt time.Time      `gorm:"index"`
}

func (GormGameResult) TableName() string { return "game_results" }

// NewGormSession builds the row for rec, which must be an internal record.
func NewGormSession(rec session.Record) GormSession {
	return GormSession{
		URL:       rec.URL,
		RulesType: rec.Game.Rules.Type,
		Status:    rec.Status,
		Version:   rec.Version,
		Record:    rec,
	}
}

func (g GormGameResult) Result() GameResult {
	return GameResult{
		URL:        g.URL,
		RulesType:  g.RulesType,
		Players:    []string(g.Players),
		Scores:     g.Scores,
		Moves:      g.Moves,
		FinishedAt: g.FinishedAt,
	}
}
