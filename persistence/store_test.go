package persistence

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/config"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/session"
)

func record(url, status string, version int64) session.Record {
	return session.Record{
		Version: version,
		URL:     url,
		Status:  status,
		Game: session.GameRecord{
			Title: "Tic Tac Toe",
			Rules: game.RulesDescriptor{Type: "in-a-row/3", MinPlayers: 2, MaxPlayers: 2},
		},
		Board:   session.BoardRecord{Width: 3, Height: 3},
		Players: []game.Player{game.NewPlayer("alice")},
		Scores:  map[string]int{"alice": 0},
	}
}

// testStore runs the behaviour every Store must share.
func testStore(t *testing.T, store Store) {
	ctx := context.Background()
	prefix := "http://sessions.test/" + strconv.FormatInt(time.Now().UnixNano(), 36) + "/"

	t.Run("version guard", func(t *testing.T) {
		url := prefix + "guard"
		require.NoError(t, store.SaveSession(ctx, record(url, "WAITING", 2)))
		require.NoError(t, store.SaveSession(ctx, record(url, "IN_PROGRESS", 5)))
		assert.ErrorIs(t, store.SaveSession(ctx, record(url, "WAITING", 5)), ErrStaleVersion)
		assert.ErrorIs(t, store.SaveSession(ctx, record(url, "WAITING", 3)), ErrStaleVersion)

		got, err := store.LoadSession(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Version)
		assert.Equal(t, "IN_PROGRESS", got.Status)
		assert.Equal(t, "alice", got.Players[0].Username)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.LoadSession(ctx, prefix+"missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
		assert.ErrorIs(t, store.SaveSession(ctx, record("", "WAITING", 1)), ErrNoURL)
	})

	t.Run("active sessions", func(t *testing.T) {
		require.NoError(t, store.SaveSession(ctx, record(prefix+"a", "IN_PROGRESS", 1)))
		require.NoError(t, store.SaveSession(ctx, record(prefix+"b", "FINISHED", 1)))

		active, err := store.ActiveSessions(ctx)
		require.NoError(t, err)
		var urls []string
		for _, rec := range active {
			urls = append(urls, rec.URL)
		}
		assert.Contains(t, urls, prefix+"a")
		assert.NotContains(t, urls, prefix+"b")

		require.NoError(t, store.DeleteSession(ctx, prefix+"a"))
		_, err = store.LoadSession(ctx, prefix+"a")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("results", func(t *testing.T) {
		url := prefix + "results"
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		result := models.GameResult{
			URL:        url,
			RulesType:  "in-a-row/3",
			Players:    []string{"alice", "bob"},
			Scores:     map[string]int{"alice": 1, "bob": 0},
			Moves:      5,
			FinishedAt: at,
		}
		require.NoError(t, store.SaveResult(ctx, result))

		got, err := store.Results(ctx, url)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, result.Players, got[0].Players)
		assert.Equal(t, result.Scores, got[0].Scores)
		assert.Equal(t, 5, got[0].Moves)
		assert.True(t, at.Equal(got[0].FinishedAt))
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	testStore(t, store)
}

// postgresConfig reads a test database from PLAYERHOOK_TEST_POSTGRES_HOST
// and friends; the PostgreSQL stores are skipped without one.
func postgresConfig(t *testing.T) config.PostgresConfig {
	host := os.Getenv("PLAYERHOOK_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("PLAYERHOOK_TEST_POSTGRES_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("PLAYERHOOK_TEST_POSTGRES_PORT"))
	if port == 0 {
		port = 5432
	}
	return config.PostgresConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("PLAYERHOOK_TEST_POSTGRES_USER"),
		Password: os.Getenv("PLAYERHOOK_TEST_POSTGRES_PASSWORD"),
		DBName:   os.Getenv("PLAYERHOOK_TEST_POSTGRES_DB"),
	}
}

func TestGormStore(t *testing.T) {
	cfg := postgresConfig(t)
	store, err := NewGormPostgreSQL(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
	require.NoError(t, err)
	defer store.Close()
	testStore(t, store)
}

func TestPQStore(t *testing.T) {
	cfg := postgresConfig(t)
	store, err := NewPostgreSQL(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
	require.NoError(t, err)
	defer store.Close()
	testStore(t, store)
}

func TestOpen(t *testing.T) {
	store, err := Open(config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = Open(config.DatabaseConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
