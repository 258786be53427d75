package corio

import (
	"sync/atomic"
	"testing"
)

// TestPoolFourPeersSpawnCounter spawns a handful of counting tasks on each
// of four peer schedulers and checks every spawn actually ran exactly once,
// with no task dropped or duplicated across peers.
func TestPoolFourPeersSpawnCounter(t *testing.T) {
	const peers = 4
	const tasksPerPeer = 25

	pool, err := SpawnPool(peers, DefaultConfig())
	if err != nil {
		t.Fatalf("SpawnPool: %v", err)
	}
	if pool.Len() != peers {
		t.Fatalf("Len = %d, want %d", pool.Len(), peers)
	}

	var counter atomic.Int64
	for i := 0; i < peers; i++ {
		peer := pool.Get(i)
		for j := 0; j < tasksPerPeer; j++ {
			if _, err := peer.Spawn(func(_ *Task, _ any) {
				counter.Add(1)
			}, nil); err != nil {
				t.Fatalf("Spawn on peer %d: %v", i, err)
			}
		}
	}

	pool.Start()
	if err := pool.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	want := int64(peers * tasksPerPeer)
	if got := counter.Load(); got != want {
		t.Fatalf("counter = %d, want %d", got, want)
	}
}

// TestPoolStopUnwindsAllPeers checks that Stop reaches every peer, not just
// one, so a cancellation broadcast against the whole pool actually drains
// every scheduler's run queue instead of hanging the ones that weren't
// called directly.
func TestPoolStopUnwindsAllPeers(t *testing.T) {
	const peers = 4

	pool, err := SpawnPool(peers, DefaultConfig())
	if err != nil {
		t.Fatalf("SpawnPool: %v", err)
	}

	var cancelled atomic.Int32
	for i := 0; i < peers; i++ {
		peer := pool.Get(i)
		if _, err := peer.Spawn(func(task *Task, _ any) {
			task.Wait(60_000)
			if task.WakeCause() == WakeCancelled {
				cancelled.Add(1)
			}
		}, nil); err != nil {
			t.Fatalf("Spawn on peer %d: %v", i, err)
		}
	}

	pool.Start()
	pool.Stop()
	if err := pool.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if got := cancelled.Load(); got != int32(peers) {
		t.Fatalf("cancelled = %d, want %d", got, peers)
	}
}
