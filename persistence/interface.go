// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/playerhook/config"
	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/session"
)

// Store keeps the latest internal record of every session and archives the
// results of finished ones.
type Store interface {
	// SaveSession stores rec unless a record with the same or a newer
	// version is already stored, in which case it returns ErrStaleVersion.
	SaveSession(ctx context.Context, rec session.Record) error
	LoadSession(ctx context.Context, url string) (session.Record, error)
	// ActiveSessions returns every stored session that has not finished.
	ActiveSessions(ctx context.Context) ([]session.Record, error)
	DeleteSession(ctx context.Context, url string) error
	SaveResult(ctx context.Context, result models.GameResult) error
	Results(ctx context.Context, url string) ([]models.GameResult, error)
	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrStaleVersion   = errors.New("stored record is newer")
	ErrUnknownDriver  = errors.New("unknown database driver")
	ErrNoURL          = errors.New("record has no url")
)

// Open returns the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (Store, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "pq", "postgres":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
}
