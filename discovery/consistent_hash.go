package discovery

import (
	"fmt"
	"hash/crc32"
	"sort"
)

// ConsistentHashBalancer maps keys to addresses using a hash ring. The
// same key always maps to the same address (until the ring changes),
// useful when repeated requests for the same logical key should land
// on the same peer connection.
//
// Virtual nodes: each real address is mapped to N virtual nodes on the
// ring. Without virtual nodes, a handful of addresses can cluster
// together on the ring, causing uneven selection. 100 virtual nodes per
// address gives reasonably uniform coverage.
type ConsistentHashBalancer struct {
	replicas int                     // Virtual nodes per real address
	ring     []uint32                // Sorted hash values on the ring
	nodes    map[uint32]*PeerAddress // Hash value → address mapping
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per address.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*PeerAddress),
	}
}

// Add places an address onto the hash ring with N virtual nodes. Each
// virtual node is hashed from "{addr}#{i}" to spread evenly across the
// ring.
func (b *ConsistentHashBalancer) Add(addr *PeerAddress) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", addr.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = addr
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick finds the address responsible for the given key: it hashes the
// key, then finds the first ring node whose hash is >= the key's hash,
// wrapping around to the first node if the key's hash is the largest.
//
// Pick takes a string key rather than []PeerAddress, since consistent
// hashing selects by key, not from a freshly discovered list; it does
// not implement the Balancer interface.
func (b *ConsistentHashBalancer) Pick(key string) (*PeerAddress, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no peer addresses on the ring")
	}

	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
