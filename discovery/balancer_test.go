package discovery

import (
	"fmt"
	"testing"
)

var testAddrs = []PeerAddress{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all addresses
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		addr, err := b.Pick(testAddrs)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = addr.Addr
	}

	// Pick again, should wrap around to first
	addr, _ := b.Pick(testAddrs)
	if addr.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], addr.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]PeerAddress{})
	if err == nil {
		t.Fatal("expect error for empty addrs")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		addr, err := b.Pick(testAddrs)
		if err != nil {
			t.Fatal(err)
		}
		counts[addr.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testAddrs {
		b.Add(&testAddrs[i])
	}

	// Same key should always map to the same address
	a1, _ := b.Pick("user-123")
	a2, _ := b.Pick("user-123")
	if a1.Addr != a2.Addr {
		t.Fatalf("same key mapped to different addresses: %s vs %s", a1.Addr, a2.Addr)
	}

	// Different keys should (likely) map to different addresses
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		addr, _ := b.Pick(fmt.Sprintf("key-%d", i))
		seen[addr.Addr] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different addresses, got %d", len(seen))
	}
}

func TestConsistentHashEmptyRing(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick("user-123"); err == nil {
		t.Fatal("expect error for an empty ring")
	}
}
