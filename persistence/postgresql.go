// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
)

const queryTimeout = 5 * time.Second

// PostgreSQL stores session records with plain SQL over lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL connects to PostgreSQL and creates the schema.
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

// initTables creates the same schema the GORM store migrates to, so the two
// drivers can share a database.
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS sessions (
            id BIGSERIAL PRIMARY KEY,
            url TEXT UNIQUE NOT NULL,
            rules_type TEXT NOT NULL,
            status TEXT NOT NULL,
            version BIGINT NOT NULL,
            record JSONB NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return wrap(err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_results (
            id BIGSERIAL PRIMARY KEY,
            url TEXT NOT NULL,
            rules_type TEXT NOT NULL,
            players TEXT[] NOT NULL,
            scores JSONB NOT NULL,
            moves BIGINT DEFAULT 0,
            finished_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return wrap(err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
        CREATE INDEX IF NOT EXISTS idx_sessions_rules_type ON sessions(rules_type);
        CREATE INDEX IF NOT EXISTS idx_game_results_url ON game_results(url);
        CREATE INDEX IF NOT EXISTS idx_game_results_finished_at ON game_results(finished_at);
    `)
	return wrap(err)
}

// wrap names the PostgreSQL error class of err.
func wrap(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("postgres %s: %w", pqErr.Code.Name(), err)
	}
	return err
}

// SaveSession upserts rec. The conflict clause only fires for strictly newer
// versions, so a stale write affects no rows.
func (p *PostgreSQL) SaveSession(ctx context.Context, rec session.Record) error {
	if rec.URL == "" {
		return ErrNoURL
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO sessions (url, rules_type, status, version, record)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (url)
        DO UPDATE SET rules_type = $2, status = $3, version = $4, record = $5, updated_at = CURRENT_TIMESTAMP
        WHERE sessions.version < EXCLUDED.version
    `
	res, err := p.db.ExecContext(ctx, query, rec.URL, rec.Game.Rules.Type, rec.Status, rec.Version, data)
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (p *PostgreSQL) LoadSession(ctx context.Context, url string) (session.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE url = $1`, url).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Record{}, ErrRecordNotFound
		}
		return session.Record{}, wrap(err)
	}
	return session.DecodeRecord(data)
}

func (p *PostgreSQL) ActiveSessions(ctx context.Context) ([]session.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT record FROM sessions WHERE status <> ALL($1) ORDER BY url`,
		pq.Array([]string{state.Finished.String()}))
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := session.DecodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgreSQL) DeleteSession(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE url = $1`, url)
	return wrap(err)
}

func (p *PostgreSQL) SaveResult(ctx context.Context, result models.GameResult) error {
	scores, err := json.Marshal(result.Scores)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO game_results (url, rules_type, players, scores, moves, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = p.db.ExecContext(ctx, query,
		result.URL, result.RulesType, pq.Array(result.Players), scores, result.Moves, result.FinishedAt)
	return wrap(err)
}

func (p *PostgreSQL) Results(ctx context.Context, url string) ([]models.GameResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT url, rules_type, players, scores, moves, finished_at
        FROM game_results WHERE url = $1 ORDER BY finished_at
    `, url)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []models.GameResult
	for rows.Next() {
		var (
			result models.GameResult
			scores []byte
		)
		err := rows.Scan(&result.URL, &result.RulesType, pq.Array(&result.Players), &scores, &result.Moves, &result.FinishedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scores, &result.Scores); err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
