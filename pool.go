package corio

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool is a fixed set of peer Schedulers, each on its own OS thread,
// sharing no mutable state. Tasks and sockets belong to exactly one
// scheduler for their lifetime; there is no cross-scheduler task
// migration.
type Pool struct {
	peers []*Scheduler
	g     *errgroup.Group
}

// SpawnPool creates n peer Schedulers, each with its own poller.
func SpawnPool(n int, cfg Config) (*Pool, error) {
	if n <= 0 {
		return nil, ErrInvalidArgument
	}
	peers := make([]*Scheduler, n)
	for i := range peers {
		s, err := New(cfg)
		if err != nil {
			for _, done := range peers[:i] {
				_ = done.Close()
			}
			return nil, err
		}
		peers[i] = s
	}
	return &Pool{peers: peers}, nil
}

// Get returns the id'th peer scheduler handle (0-based).
func (p *Pool) Get(id int) *Scheduler { return p.peers[id] }

// Len returns the number of peers in the pool.
func (p *Pool) Len() int { return len(p.peers) }

// Start launches every peer's driver loop on a dedicated, locked OS
// thread — the Go runtime otherwise freely migrates goroutines across
// threads, but each scheduler owns one OS thread for its lifetime, so
// we pin it for the duration of the loop.
func (p *Pool) Start() {
	p.g = new(errgroup.Group)
	for _, peer := range p.peers {
		peer := peer
		p.g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			return peer.Loop()
		})
	}
}

// Stop signals every peer to cancel its tasks and unwind.
func (p *Pool) Stop() {
	for _, peer := range p.peers {
		peer.Stop()
	}
}

// Join waits for all peer loops to return, propagating the first non-nil
// error, and closes every peer's poller.
func (p *Pool) Join() error {
	err := p.g.Wait()
	for _, peer := range p.peers {
		_ = peer.Close()
	}
	return err
}
