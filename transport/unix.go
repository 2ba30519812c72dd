//go:build linux

package transport

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"peerrpc/message"
	"peerrpc/protocol"
	"peerrpc/rpcerr"
)

// UnixConfig configures a UnixTransport.
type UnixConfig struct {
	// MaxBodyLenRead is the largest body the read half will accept in
	// one datagram. Excess is non-fatal: the datagram is discarded.
	MaxBodyLenRead uint32

	// MaxBodyLenWrite is the largest body the write half will send.
	// Excess is non-fatal; nothing is written to the wire.
	MaxBodyLenWrite uint32

	// MaxFDsRead sizes the ancillary-data buffer used to receive
	// SCM_RIGHTS file descriptors.
	MaxFDsRead uint32

	// MaxFDsWrite is the largest number of descriptors the write half
	// will attach to one datagram. Excess is a non-fatal error.
	MaxFDsWrite uint32

	// Endian selects the header byte order. Defaults to little-endian.
	Endian protocol.Endian
}

// DefaultUnixConfig returns the default configuration: 4 KiB body
// limits, room for 16 descriptors per direction, little-endian headers.
func DefaultUnixConfig() UnixConfig {
	return UnixConfig{
		MaxBodyLenRead:  4 * 1024,
		MaxBodyLenWrite: 4 * 1024,
		MaxFDsRead:      16,
		MaxFDsWrite:     16,
		Endian:          protocol.LittleEndian,
	}
}

func (c UnixConfig) withDefaults() UnixConfig {
	if c.MaxBodyLenRead == 0 {
		c.MaxBodyLenRead = 4 * 1024
	}
	if c.MaxBodyLenWrite == 0 {
		c.MaxBodyLenWrite = 4 * 1024
	}
	if c.MaxFDsRead == 0 {
		c.MaxFDsRead = 16
	}
	if c.MaxFDsWrite == 0 {
		c.MaxFDsWrite = 16
	}
	if c.Endian.ByteOrder() == nil {
		c.Endian = protocol.LittleEndian
	}
	return c
}

// UnixTransport carries messages, one per datagram, over a Unix
// seqpacket socket, with file descriptors passed out-of-band via
// SCM_RIGHTS ancillary messages.
type UnixTransport struct {
	conn   *net.UnixConn
	config UnixConfig
}

// NewUnixTransport wraps a SOCK_SEQPACKET *net.UnixConn with the given
// configuration.
func NewUnixTransport(conn *net.UnixConn, config UnixConfig) *UnixTransport {
	return &UnixTransport{conn: conn, config: config.withDefaults()}
}

// NewDefaultUnixTransport wraps conn with DefaultUnixConfig.
func NewDefaultUnixTransport(conn *net.UnixConn) *UnixTransport {
	return NewUnixTransport(conn, DefaultUnixConfig())
}

// Split implements Transport.
func (t *UnixTransport) Split() (ReadHalf[message.UnixBody], WriteHalf[message.UnixBody]) {
	read := &unixReadHalf{conn: t.conn, maxBodyLen: t.config.MaxBodyLenRead, maxFDs: t.config.MaxFDsRead, endian: t.config.Endian}
	write := &unixWriteHalf{conn: t.conn, maxBodyLen: t.config.MaxBodyLenWrite, maxFDs: t.config.MaxFDsWrite, endian: t.config.Endian}
	return read, write
}

// Info reports the peer credentials the kernel attaches to a Unix
// socket: uid, gid, and (where available) pid.
func (t *UnixTransport) Info() (Info, error) {
	raw, err := t.conn.SyscallConn()
	if err != nil {
		return Info{}, err
	}
	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Info{}, err
	}
	if sockErr != nil {
		return Info{}, sockErr
	}
	return Info{HasCredentials: true, UID: ucred.Uid, GID: ucred.Gid, PID: ucred.Pid}, nil
}

// Conn returns the underlying connection.
func (t *UnixTransport) Conn() *net.UnixConn { return t.conn }

// Close closes the underlying connection, unblocking any in-progress
// ReadMessage call.
func (t *UnixTransport) Close() error { return t.conn.Close() }

type unixReadHalf struct {
	conn       *net.UnixConn
	maxBodyLen uint32
	maxFDs     uint32
	endian     protocol.Endian
}

// ReadMessage receives one datagram. Every descriptor handed back by the
// kernel in the ancillary data is wrapped into an owning *os.File before
// any further validation happens, so a later error (short message,
// oversized body, invalid header) still closes the descriptors instead
// of leaking them.
func (r *unixReadHalf) ReadMessage() (message.Message[message.UnixBody], error) {
	buf := make([]byte, int(message.HeaderLen+r.maxBodyLen))
	oob := make([]byte, unix.CmsgSpace(int(r.maxFDs)*4))

	n, oobn, flags, _, err := r.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return message.Message[message.UnixBody]{}, rpcerr.NewFatal(normalizeEOF(err))
	}

	files, parseErr := extractRights(oob[:oobn])

	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if flags&unix.MSG_CTRUNC != 0 {
		// More descriptors arrived than our ancillary buffer could
		// hold; whatever the kernel still handed over is in `files`
		// and must not leak even though we're about to discard the
		// message.
		closeAll()
		return message.Message[message.UnixBody]{}, &rpcerr.PayloadTooLarge{BodyLen: int(r.maxFDs) + 1, MaxLen: r.maxFDs}
	}
	if parseErr != nil {
		closeAll()
		return message.Message[message.UnixBody]{}, rpcerr.NewFatal(parseErr)
	}

	if n < int(message.HeaderLen) {
		closeAll()
		return message.Message[message.UnixBody]{}, rpcerr.NewFatal(&rpcerr.ShortMessage{Len: n})
	}

	if flags&unix.MSG_TRUNC != 0 {
		// The body was larger than max_body_len_read: non-fatal,
		// discard this datagram but keep the connection alive.
		closeAll()
		return message.Message[message.UnixBody]{}, &rpcerr.PayloadTooLarge{BodyLen: n - int(message.HeaderLen), MaxLen: r.maxBodyLen}
	}

	header, err := protocol.DecodeHeader(buf[:message.HeaderLen], r.endian)
	if err != nil {
		closeAll()
		return message.Message[message.UnixBody]{}, rpcerr.NewFatal(err)
	}

	body := make([]byte, n-int(message.HeaderLen))
	copy(body, buf[message.HeaderLen:n])

	return message.New(header, message.NewUnixBody(body, files)), nil
}

// extractRights wraps every file descriptor found in SCM_RIGHTS
// ancillary messages into an owning *os.File, in order.
func extractRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var files []*os.File
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), "peerrpc-fd"))
		}
	}
	return files, nil
}

type unixWriteHalf struct {
	conn       *net.UnixConn
	maxBodyLen uint32
	maxFDs     uint32
	endian     protocol.Endian
}

// WriteMessage sends one datagram carrying the header, the body, and
// any attached descriptors (borrowed: the caller retains ownership).
func (w *unixWriteHalf) WriteMessage(header message.Header, body message.UnixBody) error {
	if err := rpcerr.CheckPayloadTooLarge(body.Len(), w.maxBodyLen); err != nil {
		return err
	}
	if uint32(len(body.FDs)) > w.maxFDs {
		return &rpcerr.PayloadTooLarge{BodyLen: len(body.FDs), MaxLen: w.maxFDs}
	}

	buf := make([]byte, int(message.HeaderLen)+body.Len())
	protocol.EncodeHeader(buf[:message.HeaderLen], header, w.endian)
	copy(buf[message.HeaderLen:], body.Data)

	var oob []byte
	if len(body.FDs) > 0 {
		fds := make([]int, len(body.FDs))
		for i, f := range body.FDs {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	if _, _, err := w.conn.WriteMsgUnix(buf, oob, nil); err != nil {
		return rpcerr.NewFatal(err)
	}
	return nil
}
