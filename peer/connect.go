package peer

import (
	"net"

	"go.uber.org/zap"

	"peerrpc/message"
	"peerrpc/transport"
)

// ConnectStream dials network/address (e.g. "tcp" or "unix") and spawns
// a peer over the resulting connection. A nil logger defaults to
// zap.NewNop().
func ConnectStream(network, address string, config transport.StreamConfig, logger *zap.Logger) (PeerHandle[message.StreamBody], transport.Info, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return PeerHandle[message.StreamBody]{}, transport.Info{}, err
	}

	t := transport.NewStreamTransport(conn, config)
	info, err := t.Info()
	if err != nil {
		conn.Close()
		return PeerHandle[message.StreamBody]{}, transport.Info{}, err
	}

	handle := Spawn[message.StreamBody](t, message.ErrorStreamBody, logger)
	return handle, info, nil
}

