package dht

import (
	"fmt"
	"hash/crc64"
	"sort"
	"sync"

	"autosharddb/pkg/types"
)

// replicas is the number of virtual-node positions placed on the ring per
// real peer, smoothing the key distribution across peers. Hashes are
// 64-bit so ring position and cluster-position routing key share a
// domain.
const replicas = 32

var crcTable = crc64.MakeTable(crc64.ECMA)

// Ring is a consistent-hashing ring over the 64-bit routing-key space that
// cluster positions are drawn from. FindSuccessor(key) answers "which peer
// owns this key", wrapping around to the lowest hash once key runs past
// the highest one on the ring.
type Ring struct {
	mu       sync.RWMutex
	hashes   []uint64
	byHash   map[uint64]Node
	byNodeID map[types.NodeID]Node
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	return &Ring{
		byHash:   make(map[uint64]Node),
		byNodeID: make(map[types.NodeID]Node),
	}
}

func virtualHash(id types.NodeID, replica int) uint64 {
	return crc64.Checksum(fmt.Appendf(nil, "%s#%d", id, replica), crcTable)
}

// AddNode places n's virtual replicas on the ring. Calling AddNode again
// for a NodeID already present first removes its old replicas, so
// updating a peer's entry is idempotent.
func (r *Ring) AddNode(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(n.NodeID())

	for i := 0; i < replicas; i++ {
		h := virtualHash(n.NodeID(), i)
		r.hashes = append(r.hashes, h)
		r.byHash[h] = n
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
	r.byNodeID[n.NodeID()] = n
}

// RemoveNode takes id's virtual replicas off the ring.
func (r *Ring) RemoveNode(id types.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Ring) removeLocked(id types.NodeID) {
	if _, ok := r.byNodeID[id]; !ok {
		return
	}
	filtered := r.hashes[:0]
	for _, h := range r.hashes {
		if owner, ok := r.byHash[h]; ok && owner.NodeID() == id {
			delete(r.byHash, h)
			continue
		}
		filtered = append(filtered, h)
	}
	r.hashes = filtered
	delete(r.byNodeID, id)
}

// FindSuccessor returns the peer owning key: the first virtual position
// whose hash is >= key, wrapping around to the lowest position when key
// is past every hash on the ring.
func (r *Ring) FindSuccessor(key uint64) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.hashes) == 0 {
		return nil, fmt.Errorf("autosharddb: ring has no members")
	}
	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= key })
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.byHash[r.hashes[idx]], nil
}

// Nodes returns every distinct peer currently on the ring.
func (r *Ring) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]Node, 0, len(r.byNodeID))
	for _, n := range r.byNodeID {
		nodes = append(nodes, n)
	}
	return nodes
}

// Size returns the number of distinct peers on the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNodeID)
}
