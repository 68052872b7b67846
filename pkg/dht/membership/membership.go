// Package membership maintains a dht.Ring's peer set from a ZooKeeper
// ephemeral-znode registry: register self, watch /nodes, rebuild the
// ring on every change. Each znode encodes its peer's NodeID alongside
// its address so the rebuilt ring can construct the right dht.Node
// (local vs remote) for every child.
package membership

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"autosharddb/pkg/dht"
	"autosharddb/pkg/dht/rpc"
	"autosharddb/pkg/types"
)

// ZKMembership registers this node under rootPath/nodes and keeps ring in
// sync with the live child list.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	self     types.NodeID
	addr     string
	ring     *dht.Ring
	local    dht.Node
}

// New connects to the given ZooKeeper ensemble. local is this process's
// own dht.Node (added to ring directly, never proxied over RPC);
// selfAddr is the address advertised to peers for RemoteNode RPCs.
func New(servers []string, rootPath string, self types.NodeID, selfAddr string, local dht.Node, ring *dht.Ring) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("autosharddb: zk connect: %w", err)
	}
	return &ZKMembership{
		conn:     conn,
		rootPath: rootPath,
		self:     self,
		addr:     selfAddr,
		ring:     ring,
		local:    local,
	}, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func childName(id types.NodeID, addr string) string {
	return fmt.Sprintf("%s@%s", id.String(), addr)
}

func parseChildName(child string) (types.NodeID, string, error) {
	idHex, addr, ok := strings.Cut(child, "@")
	if !ok {
		return types.NodeID{}, "", fmt.Errorf("autosharddb: malformed membership entry %q", child)
	}
	raw, err := hex.DecodeString(idHex)
	if err != nil || len(raw) != len(types.NodeID{}) {
		return types.NodeID{}, "", fmt.Errorf("autosharddb: malformed node id in %q: %w", child, err)
	}
	var id types.NodeID
	copy(id[:], raw)
	return id, addr, nil
}

// RegisterSelf creates this node's ephemeral znode.
func (m *ZKMembership) RegisterSelf() error {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}
	if err := m.ensurePath(m.rootPath + "/nodes"); err != nil {
		return fmt.Errorf("autosharddb: ensure nodes path: %w", err)
	}
	nodePath := fmt.Sprintf("%s/nodes/%s", m.rootPath, childName(m.self, m.addr))
	if _, err := m.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("autosharddb: create ephemeral node: %w", err)
	}
	slog.Info("membership: registered self", "path", nodePath)
	return nil
}

func (m *ZKMembership) rebuildRing(children []string) {
	seen := make(map[types.NodeID]bool, len(children))
	for _, child := range children {
		id, addr, err := parseChildName(child)
		if err != nil {
			slog.Warn("membership: skipping malformed entry", "entry", child, "error", err)
			continue
		}
		seen[id] = true
		if id == m.self {
			m.ring.AddNode(m.local)
			continue
		}
		m.ring.AddNode(rpc.NewRemoteNode(id, addr, m.ring))
	}
	for _, n := range m.ring.Nodes() {
		if !seen[n.NodeID()] {
			m.ring.RemoveNode(n.NodeID())
		}
	}
}

// Run watches rootPath/nodes and rebuilds ring on every membership
// change, until ctx is cancelled.
func (m *ZKMembership) Run(ctx context.Context) {
	go func() {
		for {
			children, _, ch, err := m.conn.ChildrenW(m.rootPath + "/nodes")
			if err != nil {
				slog.Warn("membership: ChildrenW failed, retrying", "error", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			m.rebuildRing(children)

			select {
			case ev := <-ch:
				slog.Debug("membership: watch event", "type", ev.Type.String())
			case <-ctx.Done():
				slog.Info("membership: watch stopped")
				return
			}
		}
	}()
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("autosharddb: zk not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
