// Package server is a thin façade: it owns the process's local DHT node
// and the ring, and is the injection point pkg/autosharded.Storage uses
// to reach the cluster.
//
// Grounded on pkg/cluster/cluster.go's NewCluster/Start shape: own the
// local peer, expose narrow accessors, let membership own the background
// reconciliation work instead of duplicating it here.
package server

import (
	"autosharddb/pkg/dht"
	"autosharddb/pkg/types"
)

// Instance owns one local dht.Node and the *dht.Ring it sits on.
type Instance struct {
	local dht.Node
	ring  *dht.Ring
}

// New registers local onto ring and returns the Instance wrapping both.
func New(local dht.Node, ring *dht.Ring) *Instance {
	ring.AddNode(local)
	return &Instance{local: local, ring: ring}
}

// LocalNode returns this process's own peer.
func (i *Instance) LocalNode() dht.Node { return i.local }

// FindSuccessor resolves the peer owning key on the ring.
func (i *Instance) FindSuccessor(key uint64) (dht.Node, error) {
	return i.ring.FindSuccessor(key)
}

// Ring exposes the underlying ring for membership to maintain.
func (i *Instance) Ring() *dht.Ring { return i.ring }

// LocalNodeID is a convenience accessor used by logging and the
// management HTTP surface.
func (i *Instance) LocalNodeID() types.NodeID { return i.local.NodeID() }
