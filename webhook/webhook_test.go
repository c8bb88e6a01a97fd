package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/rules/inarow"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/webhook"
)

var (
	alice = game.NewPlayer("alice")
	bob   = game.NewPlayer("bob")
)

type delivery struct {
	kind string
	err  error
}

type observer struct {
	mutex      sync.Mutex
	deliveries []delivery
}

func (o *observer) WebhookDelivered(kind string, err error, _ time.Duration) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.deliveries = append(o.deliveries, delivery{kind, err})
}

func ack(w http.ResponseWriter, acknowledged bool) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(session.Acknowledgement{Acknowledged: acknowledged})
}

func fastClient(opts ...webhook.Option) *webhook.Client {
	opts = append([]webhook.Option{webhook.WithRetries(3, time.Millisecond, 5*time.Millisecond)}, opts...)
	return webhook.NewClient(time.Second, opts...)
}

func started(t *testing.T, url string) *session.Session {
	t.Helper()
	g, err := game.NewGame(inarow.Title, inarow.Description, "", inarow.New(3, 3))
	require.NoError(t, err)
	s := session.New(g, url)
	require.NoError(t, s.Join(alice))
	require.NoError(t, s.Join(bob))
	require.NoError(t, s.Start())
	return s
}

func TestForwardPostsPlacement(t *testing.T) {
	var got session.PlacementRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/1/placements", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ack(w, true)
	}))
	defer srv.Close()

	obs := &observer{}
	c := fastClient(webhook.WithObserver(obs), webhook.WithHTTPClient(srv.Client()))
	p := game.Drop(inarow.Cross, alice, game.Position{Row: 1, Column: 2}).Sign("k3y")

	require.NoError(t, c.Forward(context.Background(), srv.URL+"/sessions/1/", p))
	assert.True(t, got.Placement().Equal(p))
	assert.Equal(t, "k3y", got.Key)
	require.Len(t, obs.deliveries, 1)
	assert.Equal(t, webhook.KindPlacement, obs.deliveries[0].kind)
	assert.NoError(t, obs.deliveries[0].err)
}

func TestDeliveryRequiresAcknowledgement(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		ack(w, false)
	}))
	defer srv.Close()

	err := fastClient().SendUpdate(context.Background(), srv.URL, session.UpdateRecord{Type: session.MoveUpdate})
	assert.ErrorIs(t, err, webhook.ErrNotAcknowledged)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a refusal is not retried")
}

func TestDeliveryRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		ack(w, true)
	}))
	defer srv.Close()

	require.NoError(t, fastClient().SendUpdate(context.Background(), srv.URL, session.UpdateRecord{Type: session.MoveUpdate}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliveryDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	err := fastClient().SendUpdate(context.Background(), srv.URL, session.UpdateRecord{})
	assert.ErrorIs(t, err, webhook.ErrRejected)
	assert.Contains(t, err.Error(), "no such session")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendPlacementDecodesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"acknowledged":true,"move":{"violation":"NOT_YOUR_TURN"}}`))
	}))
	defer srv.Close()

	var reply struct {
		Move session.MoveRecord `json:"move"`
	}
	p := session.PlacementRecordOf(game.Drop(inarow.Circle, bob, game.Position{}))
	require.NoError(t, fastClient().SendPlacement(context.Background(), srv.URL, p, &reply))
	assert.Equal(t, game.NotYourTurn, reply.Move.Violation)
}

type hookServer struct {
	*httptest.Server
	mutex   sync.Mutex
	records []session.UpdateRecord
}

func newHookServer(t *testing.T) *hookServer {
	h := &hookServer{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec session.UpdateRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		h.mutex.Lock()
		h.records = append(h.records, rec)
		h.mutex.Unlock()
		ack(w, true)
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hookServer) received() []session.UpdateRecord {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]session.UpdateRecord(nil), h.records...)
}

func TestForwarderFansOutInOrder(t *testing.T) {
	public := newHookServer(t)
	private := newHookServer(t)
	s := started(t, "http://sessions.test/fan")

	f := webhook.NewForwarder(fastClient())
	ctx := context.Background()
	f.Attach(ctx, s, webhook.Hook{URL: public.URL})
	f.Attach(ctx, s, webhook.Hook{URL: private.URL, Player: "alice"})
	f.Attach(ctx, s, webhook.Hook{URL: public.URL})
	assert.Len(t, f.Hooks(s.URL()), 2)

	for _, p := range []game.Placement{
		game.Drop(inarow.Cross, alice, game.Position{Row: 0, Column: 0}),
		game.Drop(inarow.Circle, bob, game.Position{Row: 1, Column: 0}),
		game.Drop(inarow.Cross, alice, game.Position{Row: 0, Column: 1}),
		game.Drop(inarow.Circle, bob, game.Position{Row: 1, Column: 1}),
		game.Drop(inarow.Cross, alice, game.Position{Row: 0, Column: 2}),
	} {
		_, err := s.Play(p)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() { f.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop after the session finished")
	}

	for _, h := range []*hookServer{public, private} {
		recs := h.received()
		require.Len(t, recs, 6, "five moves and the final status")
		for i := 1; i < len(recs); i++ {
			assert.LessOrEqual(t, len(recs[i-1].Session.PlayedMoves), len(recs[i].Session.PlayedMoves))
		}
		assert.Equal(t, session.StatusUpdate, recs[5].Type)
		assert.Equal(t, "FINISHED", recs[5].Session.Status)
		assert.Empty(t, recs[5].Session.Key)
	}
	assert.Empty(t, f.Hooks(s.URL()), "hooks are dropped when the stream completes")
}
