// Command autoshardnode runs one peer of an autosharded record storage
// cluster: a local bucket-indexed cluster store, the autosharded routing
// core in front of it, ZooKeeper-backed ring membership, a raft-backed
// leader election manager, and the record and admin HTTP surfaces peers
// and operators reach it on.
//
// Grounded on cmd/main.go's wiring shape (signal.NotifyContext, env-driven
// addresses, ZK membership, ring + router + HTTP server, graceful
// shutdown on ctx.Done()) generalized from a single sharded KV store to
// this core's DHT node / autosharded storage / leader checker stack.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhangyunhao116/fastrand"

	"autosharddb/internal/adminhttp"
	"autosharddb/pkg/autosharded"
	"autosharddb/pkg/dht"
	"autosharddb/pkg/dht/membership"
	"autosharddb/pkg/dht/rpc"
	"autosharddb/pkg/leader"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/metrics"
	"autosharddb/pkg/raftleader"
	"autosharddb/pkg/server"
	"autosharddb/pkg/types"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("AUTOSHARDDB_CONFIG")
	if configPath == "" {
		configPath = "autoshardnode.yaml"
	}
	cfg, err := initConfig(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	nodeID, err := resolveNodeID(cfg.Node.IDHex)
	if err != nil {
		fmt.Printf("invalid node id: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("autoshardnode starting. node_id=%s storage=%s\n", nodeID, cfg.Node.StorageName)

	clusterManager := localcluster.NewClusterManager(nil)
	defer clusterManager.Close()

	var undistributed []types.ClusterID
	for _, name := range cfg.Autosharded.UndistributableClusters {
		id, err := clusterManager.AddCluster(name)
		if err != nil {
			fmt.Printf("failed to bootstrap undistributed cluster %q: %v\n", name, err)
			os.Exit(1)
		}
		undistributed = append(undistributed, id)
	}

	ring := dht.NewRing()
	local := dht.NewLocalNode(nodeID, cfg.Node.StorageName, clusterManager, ring)
	instance := server.New(local, ring)

	zkMembership, err := membership.New(cfg.DHT.ZooKeeperServers, cfg.DHT.RootPath, nodeID, cfg.DHT.AdvertiseAddr, local, ring)
	if err != nil {
		fmt.Printf("failed to connect to zookeeper: %v\n", err)
		os.Exit(1)
	}
	defer zkMembership.Close()

	if err := zkMembership.RegisterSelf(); err != nil {
		fmt.Printf("failed to register node in zookeeper: %v\n", err)
		os.Exit(1)
	}
	zkMembership.Run(ctx)

	collector := metrics.NewPrometheus("autosharddb", nodeID.String())
	storage := autosharded.New(clusterManager, instance, cfg.Node.StorageName, undistributed, collector)

	recordServer := rpc.NewServer(autosharded.NewHandler(storage), cfg.RPC.RecordListenAddr)
	if err := recordServer.Start(); err != nil {
		fmt.Printf("failed to start record server: %v\n", err)
		os.Exit(1)
	}

	raftPeers := make([]raftleader.PeerConfig, 0, len(cfg.Leader.Raft.Peers))
	transportPeers := make(map[uint64]string, len(cfg.Leader.Raft.Peers))
	for _, p := range cfg.Leader.Raft.Peers {
		raftPeers = append(raftPeers, raftleader.PeerConfig{ID: p.ID, Address: p.Address})
		if p.ID != cfg.Leader.Raft.ID {
			transportPeers[p.ID] = p.Address
		}
	}
	transport := raftleader.NewHTTPTransport(transportPeers)
	raftMgr, err := raftleader.NewManager(raftleader.Config{ID: cfg.Leader.Raft.ID, Peers: raftPeers}, transport)
	if err != nil {
		fmt.Printf("failed to start raft leader manager: %v\n", err)
		os.Exit(1)
	}
	go func() {
		if err := raftMgr.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("raft leader manager stopped: %v\n", err)
		}
	}()

	heartbeatInterval := time.Duration(cfg.Leader.HeartBeatDelayMillis) * time.Millisecond
	checker := leader.NewChecker(raftMgr, raftMgr, heartbeatInterval)
	checker.Start(ctx)

	adminServer := adminhttp.NewServer(storage, instance, ring, raftMgr, cfg.RPC.AdminListenAddr)
	if err := adminServer.Start(); err != nil {
		fmt.Printf("failed to start admin server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("record rpc listening on %s, admin http listening on %s\n", cfg.RPC.RecordListenAddr, cfg.RPC.AdminListenAddr)
	fmt.Println("press ctrl+c to stop...")

	<-ctx.Done()

	checker.Stop()
	raftMgr.Stop()
	if err := recordServer.Stop(); err != nil {
		fmt.Printf("error stopping record server: %v\n", err)
	}
	if err := adminServer.Stop(); err != nil {
		fmt.Printf("error stopping admin server: %v\n", err)
	}

	fmt.Println("autoshardnode stopped")
}

// resolveNodeID decodes idHex into a types.NodeID, or draws a fresh random
// one (seeded from the same fastrand source pkg/mtrand uses) when idHex is
// empty.
func resolveNodeID(idHex string) (types.NodeID, error) {
	if idHex == "" {
		var id types.NodeID
		for i := 0; i < len(id); i += 4 {
			v := fastrand.Uint32()
			for j := 0; j < 4 && i+j < len(id); j++ {
				id[i+j] = byte(v >> (8 * j))
			}
		}
		return id, nil
	}
	raw, err := hex.DecodeString(idHex)
	if err != nil {
		return types.NodeID{}, fmt.Errorf("decode node id hex %q: %w", idHex, err)
	}
	var id types.NodeID
	if len(raw) != len(id) {
		return types.NodeID{}, fmt.Errorf("node id %q must decode to %d bytes, got %d", idHex, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
