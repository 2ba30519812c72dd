package discovery

import (
	"fmt"
	"sync/atomic"
)

// RoundRobinBalancer distributes connection attempts evenly across all
// addresses in order. Uses an atomic counter for lock-free, goroutine-safe
// operation.
//
// Best for: peers with similar capacity, where any instance is an
// equally good dial target.
type RoundRobinBalancer struct {
	counter int64 // Atomic counter, incremented on each Pick()
}

// Pick selects the next address in round-robin order.
func (b *RoundRobinBalancer) Pick(addrs []PeerAddress) (*PeerAddress, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no peer addresses available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(addrs))
	return &addrs[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
