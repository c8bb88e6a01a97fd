package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/persistence"
	"github.com/wfunc/playerhook/rules/inarow"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
	"github.com/wfunc/playerhook/webhook"
)

var (
	alice = game.NewPlayer("alice")
	bob   = game.NewPlayer("bob")
)

type gauges struct {
	mutex sync.Mutex
	last  int
}

func (g *gauges) SetActiveSessions(n int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.last = n
}

func (g *gauges) get() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.last
}

func newService(t *testing.T, store persistence.Store, opts ...Option) *SessionService {
	t.Helper()
	rules := game.NewRuleRegistry()
	require.NoError(t, inarow.Register(rules))
	client := webhook.NewClient(time.Second, webhook.WithRetries(1, time.Millisecond, time.Millisecond))
	svc := NewSessionService("http://node.test/", session.NewRegistry(rules), store, webhook.NewForwarder(client), opts...)
	t.Cleanup(svc.Close)
	return svc
}

func idOf(sess *session.Session) string {
	return sess.URL()[strings.LastIndex(sess.URL(), "/")+1:]
}

func at(row, column int) game.Position {
	return game.Position{Row: row, Column: column}
}

func TestCreateAndPlayToTheEnd(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	g := &gauges{}
	svc := newService(t, store, WithGauges(g))

	_, err := svc.Create(ctx, "chess", "")
	assert.ErrorIs(t, err, ErrUnknownRules)

	sess, err := svc.Create(ctx, "in-a-row/3", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.URL(), "http://node.test/sessions/"))
	assert.Equal(t, 1, g.get())
	id := idOf(sess)

	stored, err := store.LoadSession(ctx, sess.URL())
	require.NoError(t, err)
	assert.Equal(t, "WAITING", stored.Status)

	require.NoError(t, svc.Join(id, alice, ""))
	require.NoError(t, svc.Join(id, bob, ""))
	require.NoError(t, svc.Start(id))
	for _, p := range []game.Placement{
		game.Drop(inarow.Cross, alice, at(0, 0)),
		game.Drop(inarow.Circle, bob, at(1, 0)),
		game.Drop(inarow.Cross, alice, at(0, 1)),
		game.Drop(inarow.Circle, bob, at(1, 1)),
		game.Drop(inarow.Cross, alice, at(0, 2)),
	} {
		move, err := svc.Play(id, p)
		require.NoError(t, err)
		require.False(t, move.Rejected())
	}

	assert.Eventually(t, func() bool {
		results, err := svc.Results(ctx, id)
		return err == nil && len(results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	results, err := svc.Results(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0}, results[0].Scores)
	assert.Equal(t, 5, results[0].Moves)

	stored, err = store.LoadSession(ctx, sess.URL())
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", stored.Status)

	assert.Eventually(t, func() bool { return g.get() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, err = svc.Get(id)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()

	first := newService(t, store)
	sess, err := first.Create(ctx, "in-a-row/3", "restored")
	require.NoError(t, err)
	id := idOf(sess)
	require.NoError(t, first.Join(id, alice, ""))
	require.NoError(t, first.Join(id, bob, ""))
	require.NoError(t, first.Start(id))
	_, err = first.Play(id, game.Drop(inarow.Cross, alice, at(1, 1)))
	require.NoError(t, err)

	want := sess.Version()
	assert.Eventually(t, func() bool {
		rec, err := store.LoadSession(ctx, sess.URL())
		return err == nil && rec.Version == want
	}, 2*time.Second, 10*time.Millisecond)

	second := newService(t, store)
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restored, err := second.Get(id)
	require.NoError(t, err)
	assert.Equal(t, state.InProgress, restored.Status())
	assert.Equal(t, "restored", restored.Game().Title)
	assert.Equal(t, 1, restored.Snapshot().Board().Len())

	move, err := second.Play(id, game.Drop(inarow.Circle, bob, at(0, 0)))
	require.NoError(t, err)
	assert.False(t, move.Rejected(), "restored rules still evaluate")
}

func TestJoinWithHookDeliversProtectedUpdates(t *testing.T) {
	var (
		mutex   sync.Mutex
		records []session.UpdateRecord
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec session.UpdateRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		mutex.Lock()
		records = append(records, rec)
		mutex.Unlock()
		_ = json.NewEncoder(w).Encode(session.Acknowledgement{Acknowledged: true})
	}))
	defer hook.Close()

	svc := newService(t, persistence.NewMemory())
	sess, err := svc.Create(context.Background(), "in-a-row/3", "")
	require.NoError(t, err)
	id := idOf(sess)

	assert.ErrorIs(t, svc.Join(id, alice, "ftp://nowhere"), ErrInvalidHook)
	require.NoError(t, svc.Join(id, bob, hook.URL))
	require.Len(t, svc.Hooks(id), 1)
	assert.Equal(t, "bob", svc.Hooks(id)[0].Player)

	require.NoError(t, svc.Start(id))
	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, session.StatusUpdate, records[0].Type)
	assert.Equal(t, "IN_PROGRESS", records[0].Session.Status)
	assert.Zero(t, records[0].Session.Version, "hooks never see the version")
}

func TestSyncMaterializesRemoteSession(t *testing.T) {
	remote := newService(t, persistence.NewMemory())
	sess, err := remote.Create(context.Background(), "in-a-row/3", "")
	require.NoError(t, err)
	require.NoError(t, remote.Join(idOf(sess), alice, ""))
	rec := sess.Snapshot().Record(session.Internal, "")

	local := newService(t, persistence.NewMemory())
	applied, err := local.Sync(rec)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = local.Sync(rec)
	require.NoError(t, err)
	assert.False(t, applied)

	list := local.List()
	require.Len(t, list, 1)
	assert.Equal(t, []string{"alice"}, list[0].Players)
	assert.Equal(t, "in-a-row/3", list[0].RulesType)

	_, err = local.Sync(session.Record{})
	assert.ErrorIs(t, err, session.ErrMalformedRecord)
}

func TestSignAndKey(t *testing.T) {
	store := persistence.NewMemory()
	svc := newService(t, store)
	sess, err := svc.Create(context.Background(), "in-a-row/3", "")
	require.NoError(t, err)
	id := idOf(sess)

	key, err := svc.Key(id, "alice")
	require.NoError(t, err)
	assert.Empty(t, key, "unsigned sessions hand out no keys")

	require.NoError(t, svc.Sign(id, "secret"))
	key, err = svc.Key(id, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	stored, err := store.LoadSession(context.Background(), sess.URL())
	require.NoError(t, err)
	assert.Equal(t, sess.Version(), stored.Version, "signing is written through without waiting for a sync")
	assert.Equal(t, "secret", stored.Key)

	assert.ErrorIs(t, svc.Sign("missing", "secret"), session.ErrSessionNotFound)
}

func TestSyncAllPersistsLiveSessions(t *testing.T) {
	store := persistence.NewMemory()
	svc := newService(t, store, WithSyncInterval(100*time.Millisecond))
	sess, err := svc.Create(context.Background(), "in-a-row/3", "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(context.Background(), sess.URL()))
	assert.Eventually(t, func() bool {
		_, err := store.LoadSession(context.Background(), sess.URL())
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
