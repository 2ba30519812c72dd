package discovery

import (
	"fmt"
	"math/rand"
)

// WeightedRandomBalancer selects an address probabilistically based on
// its weight. An address with weight 10 gets roughly 2x the connection
// attempts of one with weight 5.
//
// Algorithm:
//  1. Sum all weights → totalWeight
//  2. Generate random number r in [0, totalWeight)
//  3. Subtract each address's weight from r until r < 0
//  4. The address that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(addrs []PeerAddress) (*PeerAddress, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no peer addresses available")
	}

	totalWeight := 0
	for _, a := range addrs {
		totalWeight += a.Weight
	}
	if totalWeight <= 0 {
		return &addrs[rand.Intn(len(addrs))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range addrs {
		r -= addrs[i].Weight
		if r < 0 {
			return &addrs[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
