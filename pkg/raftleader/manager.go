// Package raftleader is the reference leader.Manager this module ships so
// the demo binary and integration tests exercise a real election instead
// of a no-op: leader.Checker's BecameLeader() callback triggers an
// etcd-raft Campaign, and Manager reports the resulting leader back to
// the rest of the node.
//
// Built around etcd-raft's StartNode/tick/Ready loop and an HTTP
// transport between peers, trimmed down to leader election only: this
// core has no replicated log to apply, since record CRUD is
// pkg/autosharded's job, not raft's, so committed entries here only ever
// carry conf changes.
package raftleader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"autosharddb/pkg/types"
)

// PeerConfig names one raft group member.
type PeerConfig struct {
	ID      uint64
	Address string
}

// Config configures a Manager's underlying raft group.
type Config struct {
	ID            uint64
	Peers         []PeerConfig
	ElectionTick  int
	HeartbeatTick int
	TickInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ElectionTick == 0 {
		c.ElectionTick = 10
	}
	if c.HeartbeatTick == 0 {
		c.HeartbeatTick = 1
	}
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	return c
}

// Manager wires a leader.Checker's timeout callback into an etcd-raft
// campaign. It satisfies leader.Manager (BecameLeader) without importing
// pkg/leader, the same structural decoupling pkg/dht/rpc.Handler uses.
type Manager struct {
	id           uint64
	peers        map[uint64]string
	underlying   raft.Node
	storage      *raft.MemoryStorage
	transport    Transport
	tickInterval time.Duration

	heartbeatMu   sync.Mutex
	lastHeartbeat time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager starts a raft group member with the given configuration,
// communicating over transport.
func NewManager(cfg Config, transport Transport) (*Manager, error) {
	cfg = cfg.withDefaults()
	storage := raft.NewMemoryStorage()
	raftCfg := &raft.Config{
		ID:              cfg.ID,
		ElectionTick:    cfg.ElectionTick,
		HeartbeatTick:   cfg.HeartbeatTick,
		Storage:         storage,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
		CheckQuorum:     true,
		PreVote:         true,
	}

	peers := make(map[uint64]string, len(cfg.Peers))
	raftPeers := make([]raft.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if _, exists := peers[p.ID]; exists {
			return nil, fmt.Errorf("autosharddb: duplicate raft peer id %d", p.ID)
		}
		peers[p.ID] = p.Address
		raftPeers = append(raftPeers, raft.Peer{ID: p.ID, Context: []byte(p.Address)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		id:            cfg.ID,
		peers:         peers,
		underlying:    raft.StartNode(raftCfg, raftPeers),
		storage:       storage,
		transport:     transport,
		tickInterval:  cfg.TickInterval,
		lastHeartbeat: time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Run drives the raft node's tick/Ready loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-ctx.Done():
			m.underlying.Stop()
			m.cancel()
			return ctx.Err()
		case <-ticker.C:
			m.underlying.Tick()
			if m.IsLeader() {
				m.heartbeatMu.Lock()
				m.lastHeartbeat = time.Now()
				m.heartbeatMu.Unlock()
			}
		case rd := <-m.underlying.Ready():
			if err := m.handleReady(rd); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) handleReady(rd raft.Ready) error {
	if err := m.storage.Append(rd.Entries); err != nil {
		return fmt.Errorf("autosharddb: raft append entries: %w", err)
	}
	for _, msg := range rd.Messages {
		if msg.To == m.id {
			continue
		}
		go func(msg raftpb.Message) {
			if err := m.transport.Send(msg); err != nil {
				slog.Warn("raftleader: send failed", "to", msg.To, "type", msg.Type, "error", err)
			}
		}(msg)
	}
	for _, entry := range rd.CommittedEntries {
		if entry.Type != raftpb.EntryConfChange {
			continue
		}
		var cc raftpb.ConfChange
		if err := cc.Unmarshal(entry.Data); err != nil {
			return fmt.Errorf("autosharddb: raft unmarshal conf change: %w", err)
		}
		m.underlying.ApplyConfChange(cc)
		m.applyConfChange(cc)
	}
	m.underlying.Advance()
	return nil
}

func (m *Manager) applyConfChange(cc raftpb.ConfChange) {
	switch cc.Type {
	case raftpb.ConfChangeAddNode, raftpb.ConfChangeUpdateNode:
		m.peers[cc.NodeID] = string(cc.Context)
		m.transport.AddPeer(cc.NodeID, string(cc.Context))
	case raftpb.ConfChangeRemoveNode:
		delete(m.peers, cc.NodeID)
		m.transport.RemovePeer(cc.NodeID)
	}
}

// Step feeds an inbound raft message received over transport into the
// underlying node. Receiving a heartbeat from the current leader resets
// the clock pkg/leader.Checker watches via LastHeartBeat.
func (m *Manager) Step(ctx context.Context, msg raftpb.Message) error {
	if msg.Type == raftpb.MsgHeartbeat {
		m.heartbeatMu.Lock()
		m.lastHeartbeat = time.Now()
		m.heartbeatMu.Unlock()
	}
	return m.underlying.Step(ctx, msg)
}

// LastHeartBeat implements leader.PeerHeartbeat: it reports the last time
// this node observed a heartbeat from the raft leader (or process start,
// if none has arrived yet).
func (m *Manager) LastHeartBeat() time.Time {
	m.heartbeatMu.Lock()
	defer m.heartbeatMu.Unlock()
	return m.lastHeartbeat
}

// BecameLeader implements leader.Manager: it is invoked by a
// leader.Checker that observed a heartbeat timeout on the peer it
// watches, and starts this node's own campaign to take over. Reconciling
// the actual outcome (win or lose the election) is raft's job from here.
func (m *Manager) BecameLeader() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.underlying.Campaign(ctx); err != nil {
		slog.Error("raftleader: campaign failed", "error", err)
	}
}

// IsLeader reports whether this node currently holds raft leadership.
func (m *Manager) IsLeader() bool {
	return m.underlying.Status().Lead == m.id
}

// LeaderID returns the raft-group id of the current leader, encoded into
// a types.NodeID's low 8 bytes (this reference manager only needs to
// disambiguate peers within one raft group, not a full 160-bit identity).
func (m *Manager) LeaderID() types.NodeID {
	var id types.NodeID
	lead := m.underlying.Status().Lead
	for i := 0; i < 8; i++ {
		id[19-i] = byte(lead >> (8 * i))
	}
	return id
}

// Stop releases the underlying raft node.
func (m *Manager) Stop() {
	m.underlying.Stop()
	m.cancel()
}
