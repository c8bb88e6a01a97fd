package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/playerhook/broadcast"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/state"
)

var ErrNoAuthority = errors.New("mirror has no authoritative url")

// Forwarder delivers a placement to the authoritative session at url.
type Forwarder interface {
	Forward(ctx context.Context, url string, p game.Placement) error
}

// Mirror is a read-mostly copy of a session owned by another process. It
// follows the authority through Merge and forwards placements to it.
type Mirror struct {
	cur       *Snapshot
	hub       *broadcast.Hub[Update]
	forwarder Forwarder
	mutex     sync.RWMutex
}

func NewMirror(snap *Snapshot, forwarder Forwarder) *Mirror {
	m := &Mirror{cur: snap, hub: broadcast.NewHub[Update](), forwarder: forwarder}
	if snap.status == state.Finished {
		m.hub.Complete()
	}
	return m
}

func (m *Mirror) Snapshot() *Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.cur
}

func (m *Mirror) Subscribe() *broadcast.Subscription[Update] {
	return m.hub.Subscribe()
}

// Merge applies the same rule as Session.Merge: only strictly newer
// snapshots replace the mirrored state.
func (m *Mirror) Merge(snap *Snapshot) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cur := m.cur
	if snap.version <= cur.version {
		return false
	}
	m.cur = snap
	if u, ok := Diff(cur, snap); ok {
		m.hub.Publish(u)
	}
	if snap.status == state.Finished {
		m.hub.Complete()
	}
	return true
}

// Play forwards p to the authoritative session. The mirror itself changes
// only when the authority pushes a newer snapshot.
func (m *Mirror) Play(ctx context.Context, p game.Placement) error {
	url := m.Snapshot().URL()
	if url == "" {
		return ErrNoAuthority
	}
	if err := m.forwarder.Forward(ctx, url, p); err != nil {
		return fmt.Errorf("forward %s to %s: %w", p, url, err)
	}
	return nil
}
