package webhook

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wfunc/playerhook/broadcast"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/session"
)

// Hook is a counterpart interested in a session. Player names whose
// secrets the hook may see; an empty Player receives public records. A
// trusted hook, such as a peer node mirroring the session, receives
// internal records including the version.
type Hook struct {
	URL     string `json:"url"`
	Player  string `json:"player,omitempty"`
	Trusted bool   `json:"trusted,omitempty"`
}

func (h Hook) privacy() session.Privacy {
	if h.Trusted {
		return session.Internal
	}
	if h.Player == "" {
		return session.Public
	}
	return session.Protected
}

// Forwarder fans the updates of watched sessions out to their hooks. One
// goroutine per session consumes the session's stream, so each hook sees
// the updates of a session in order. Delivery failures are logged and do
// not stop the stream.
type Forwarder struct {
	client *Client
	hooks  map[string][]Hook
	mutex  sync.RWMutex
	wg     sync.WaitGroup
}

func NewForwarder(client *Client) *Forwarder {
	return &Forwarder{client: client, hooks: make(map[string][]Hook)}
}

// Attach adds hook to the session and starts watching the session on its
// first hook. A hook already attached is not added twice.
func (f *Forwarder) Attach(ctx context.Context, s *session.Session, hook Hook) {
	url := s.URL()

	f.mutex.Lock()
	hooks, watching := f.hooks[url]
	for _, h := range hooks {
		if h == hook {
			f.mutex.Unlock()
			return
		}
	}
	f.hooks[url] = append(hooks, hook)
	f.mutex.Unlock()

	if !watching {
		sub := s.Subscribe()
		f.wg.Add(1)
		go f.watch(ctx, url, sub)
	}
}

// Hooks returns the hooks attached to the session at url.
func (f *Forwarder) Hooks(url string) []Hook {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return append([]Hook(nil), f.hooks[url]...)
}

// Wait blocks until every watched stream has ended.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) watch(ctx context.Context, url string, sub *broadcast.Subscription[session.Update]) {
	defer f.wg.Done()
	defer func() {
		f.mutex.Lock()
		delete(f.hooks, url)
		f.mutex.Unlock()
	}()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			f.Deliver(ctx, u)
		}
	}
}

// Deliver sends u to every hook of its session concurrently and returns
// once all deliveries have finished.
func (f *Forwarder) Deliver(ctx context.Context, u session.Update) {
	hooks := f.Hooks(u.Snapshot.URL())
	g, ctx := errgroup.WithContext(ctx)
	for _, hook := range hooks {
		g.Go(func() error {
			rec := u.Record(hook.privacy(), hook.Player)
			if err := f.client.SendUpdate(ctx, hook.URL, rec); err != nil {
				logger.Log.Warnf("Webhook %s missed %s: %v", hook.URL, u, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
