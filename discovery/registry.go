// Package discovery locates a remote peer's dial address before a
// connection is established.
//
// peerrpc's connections are symmetric once established — either side
// can send requests — but something still has to decide which address
// to dial in the first place. Instead of hardcoding host:port, peers
// register themselves under a service name in a registry (etcd), and
// the dialing side resolves that name to a list of candidate addresses
// and picks one with a Balancer. None of this reaches into the peer
// engine: the address chosen by Discover and a Balancer's Pick is just
// the address handed to peer.ConnectStream or peer.ConnectUnixSeqpacket.
package discovery

// PeerAddress is one registered, dialable location for a named peer
// service.
type PeerAddress struct {
	Addr    string // Network address, e.g., "127.0.0.1:7420" or a Unix socket path.
	Weight  int    // Relative selection weight for WeightedRandomBalancer.
	Version string // Peer build/version tag, for staged rollouts.
}

// Registry is the interface for peer registration and discovery.
// Implementations include EtcdRegistry (production) and any
// test-provided in-memory stand-in.
type Registry interface {
	// Register adds a peer address to the registry with a TTL lease.
	// The entry is automatically removed if KeepAlive stops (e.g. the
	// peer process crashes without deregistering).
	Register(serviceName string, addr PeerAddress, ttl int64) error

	// Deregister removes a peer address from the registry. Called
	// during graceful shutdown, before the listening socket is closed.
	Deregister(serviceName string, addr string) error

	// Discover returns every currently registered address for a
	// service name.
	Discover(serviceName string) ([]PeerAddress, error)

	// Watch returns a channel that emits the updated address list
	// whenever a service's registered addresses change.
	Watch(serviceName string) <-chan []PeerAddress
}
