//go:build linux

package peer

import (
	"net"

	"go.uber.org/zap"

	"peerrpc/message"
	"peerrpc/transport"
)

// ConnectUnixSeqpacket dials a Unix seqpacket socket at address and
// spawns a peer over the resulting connection. A nil logger defaults
// to zap.NewNop().
func ConnectUnixSeqpacket(address string, config transport.UnixConfig, logger *zap.Logger) (PeerHandle[message.UnixBody], transport.Info, error) {
	conn, err := net.Dial("unixpacket", address)
	if err != nil {
		return PeerHandle[message.UnixBody]{}, transport.Info{}, err
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return PeerHandle[message.UnixBody]{}, transport.Info{}, errUnexpectedConnType
	}

	t := transport.NewUnixTransport(unixConn, config)
	info, err := t.Info()
	if err != nil {
		unixConn.Close()
		return PeerHandle[message.UnixBody]{}, transport.Info{}, err
	}

	handle := Spawn[message.UnixBody](t, message.ErrorUnixBody, logger)
	return handle, info, nil
}

type unexpectedConnTypeError string

func (e unexpectedConnTypeError) Error() string { return string(e) }

var errUnexpectedConnType = unexpectedConnTypeError("dialed connection was not a *net.UnixConn")
