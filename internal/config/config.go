// Package config holds the node-level configuration surface: identity,
// ring/membership, the autosharded routing core's undistributed-cluster
// list and heartbeat delay, and the RPC endpoints peers reach this
// process on.
//
// Grounded on pkg/config/config.go's shape (root Config struct, yaml
// tags, a Default() constructor) generalized from an LSM store's
// memtable/persistence knobs to this core's DHT/autosharded surface.
package config

import "github.com/goccy/go-yaml"

// Config is the root configuration for one autosharddb node.
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	DHT         DHTConfig         `yaml:"dht"`
	Autosharded AutoshardedConfig `yaml:"autosharded"`
	Leader      LeaderConfig      `yaml:"leader"`
	RPC         RPCConfig         `yaml:"rpc"`
	Logger      LoggerConfig      `yaml:"logger"`
}

// NodeConfig identifies this process within the ring.
type NodeConfig struct {
	// IDHex is this node's 160-bit NodeID, hex-encoded (40 characters).
	// Left empty, the node generates one at startup.
	IDHex string `yaml:"id_hex"`
	// StorageName is the name peers address this node's storage by over
	// RPC.
	StorageName string `yaml:"storage_name"`
}

// DHTConfig configures ring membership.
type DHTConfig struct {
	// ZooKeeperServers is the ensemble backing ring membership
	// (pkg/dht/membership.ZKMembership).
	ZooKeeperServers []string `yaml:"zookeeper_servers"`
	// RootPath is the ZooKeeper znode prefix this cluster registers
	// peers under.
	RootPath string `yaml:"root_path"`
	// AdvertiseAddr is the base URL other peers reach this node's
	// pkg/dht/rpc.Server on.
	AdvertiseAddr string `yaml:"advertise_addr"`
}

// AutoshardedConfig carries the autosharded routing core's configuration
// surface: the set of cluster names that bypass DHT routing entirely.
type AutoshardedConfig struct {
	UndistributableClusters []string `yaml:"undistributable_clusters"`
}

// LeaderConfig carries the leader checker's heartbeat configuration: the
// base interval the checker multiplies by 1.3 for its timeout threshold.
type LeaderConfig struct {
	HeartBeatDelayMillis int64      `yaml:"heartbeat_delay_millis"`
	Raft                 RaftConfig `yaml:"raft"`
}

// RaftConfig configures the reference raft-backed leader.Manager
// (pkg/raftleader).
type RaftConfig struct {
	ID    uint64           `yaml:"id"`
	Peers []RaftPeerConfig `yaml:"peers"`
}

// RaftPeerConfig names one member of the leader-election raft group.
type RaftPeerConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// RPCConfig covers the HTTP surfaces this node exposes: the dht/rpc
// record server peers call, and the chi-routed management surface
// (health/metrics/admin) the demo binary serves.
type RPCConfig struct {
	RecordListenAddr string `yaml:"record_listen_addr"`
	AdminListenAddr  string `yaml:"admin_listen_addr"`
}

// LoggerConfig controls the slog handler the demo binary installs.
type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline single-node development configuration.
func Default() Config {
	return Config{
		Node: NodeConfig{StorageName: "default"},
		DHT: DHTConfig{
			ZooKeeperServers: []string{"127.0.0.1:2181"},
			RootPath:         "/autosharddb",
			AdvertiseAddr:    "http://127.0.0.1:7070",
		},
		Autosharded: AutoshardedConfig{},
		Leader: LeaderConfig{
			HeartBeatDelayMillis: 1000,
			Raft:                 RaftConfig{ID: 1, Peers: []RaftPeerConfig{{ID: 1, Address: "http://127.0.0.1:7071"}}},
		},
		RPC: RPCConfig{
			RecordListenAddr: ":7070",
			AdminListenAddr:  ":7072",
		},
		Logger: LoggerConfig{Level: "INFO", JSON: false},
	}
}

// Load reads and parses a YAML configuration file, starting from
// Default() so unset fields keep their development defaults.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
