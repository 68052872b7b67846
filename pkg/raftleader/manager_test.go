package raftleader

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent int
}

func (f *fakeTransport) Send(msg raftpb.Message) error {
	f.mu.Lock()
	f.sent++
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) AddPeer(id uint64, addr string) {}
func (f *fakeTransport) RemovePeer(id uint64)            {}

// TestSingleNodeGroupBecomesLeader exercises a one-member raft group: it
// should elect itself leader without any BecameLeader intervention, and
// BecameLeader's Campaign call on an already-leading node must not panic
// or deadlock.
func TestSingleNodeGroupBecomesLeader(t *testing.T) {
	mgr, err := NewManager(Config{
		ID:            1,
		Peers:         []PeerConfig{{ID: 1, Address: "http://node-1"}},
		TickInterval:  5 * time.Millisecond,
		ElectionTick:  5,
		HeartbeatTick: 1,
	}, &fakeTransport{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	defer func() {
		cancel()
		mgr.Stop()
	}()

	deadline := time.After(2 * time.Second)
	for !mgr.IsLeader() {
		select {
		case <-deadline:
			t.Fatal("single-node raft group never elected itself leader")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mgr.BecameLeader()
	if !mgr.IsLeader() {
		t.Fatal("expected to remain leader after a redundant BecameLeader call")
	}
}
