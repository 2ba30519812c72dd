package discovery

// Balancer picks one peer address from a discovered list. The dialing
// side calls Pick once per connection attempt, before handing the
// chosen address to peer.ConnectStream or peer.ConnectUnixSeqpacket.
type Balancer interface {
	// Pick selects one address from the available list. Must be safe
	// for concurrent use.
	Pick(addrs []PeerAddress) (*PeerAddress, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
