package transport

import (
	"io"
	"net"

	"peerrpc/message"
	"peerrpc/protocol"
	"peerrpc/rpcerr"
)

// StreamConfig configures a StreamTransport.
type StreamConfig struct {
	// MaxBodyLenRead is the largest body the read half will accept.
	// Exceeding it is a fatal error: the stream is mid-message and
	// cannot be resynchronized.
	MaxBodyLenRead uint32

	// MaxBodyLenWrite is the largest body the write half will send.
	// Exceeding it is a non-fatal error; nothing is written to the wire.
	MaxBodyLenWrite uint32

	// Endian selects the header/frame-length byte order. Defaults to
	// little-endian.
	Endian protocol.Endian
}

// DefaultStreamConfig returns the default configuration: 8 KiB body
// limits in both directions, little-endian headers.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxBodyLenRead:  8 * 1024,
		MaxBodyLenWrite: 8 * 1024,
		Endian:          protocol.LittleEndian,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.MaxBodyLenRead == 0 {
		c.MaxBodyLenRead = 8 * 1024
	}
	if c.MaxBodyLenWrite == 0 {
		c.MaxBodyLenWrite = 8 * 1024
	}
	if c.Endian.ByteOrder() == nil {
		c.Endian = protocol.LittleEndian
	}
	return c
}

// StreamTransport carries messages over any length-prefixed byte stream:
// a TCP connection or a Unix domain stream socket.
type StreamTransport struct {
	conn   net.Conn
	config StreamConfig
}

// NewStreamTransport wraps conn (a *net.TCPConn or *net.UnixConn in
// stream mode) with the given configuration.
func NewStreamTransport(conn net.Conn, config StreamConfig) *StreamTransport {
	return &StreamTransport{conn: conn, config: config.withDefaults()}
}

// NewDefaultStreamTransport wraps conn with DefaultStreamConfig.
func NewDefaultStreamTransport(conn net.Conn) *StreamTransport {
	return NewStreamTransport(conn, DefaultStreamConfig())
}

// Split implements Transport.
func (t *StreamTransport) Split() (ReadHalf[message.StreamBody], WriteHalf[message.StreamBody]) {
	read := &streamReadHalf{conn: t.conn, maxBodyLen: t.config.MaxBodyLenRead, endian: t.config.Endian}
	write := &streamWriteHalf{conn: t.conn, maxBodyLen: t.config.MaxBodyLenWrite, endian: t.config.Endian}
	return read, write
}

// Info implements Transport. Plain byte streams carry no peer
// credentials.
func (t *StreamTransport) Info() (Info, error) {
	return Info{PID: -1}, nil
}

// Conn returns the underlying connection.
func (t *StreamTransport) Conn() net.Conn { return t.conn }

// Close closes the underlying connection, unblocking any in-progress
// ReadMessage call.
func (t *StreamTransport) Close() error { return t.conn.Close() }

type streamReadHalf struct {
	conn       io.Reader
	maxBodyLen uint32
	endian     protocol.Endian
}

// ReadMessage reads one frame-length-prefixed message.
//
// Go's blocking net.Conn already resumes a partial read across
// kernel-level short reads within a single io.ReadFull call, which is
// what a poll-based implementation would otherwise need explicit
// buffered-byte-count bookkeeping for. The read loop goroutine simply
// blocks here until a full frame is available or the connection errs.
func (r *streamReadHalf) ReadMessage() (message.Message[message.StreamBody], error) {
	var framed [protocol.FramedHeaderLen]byte
	if _, err := io.ReadFull(r.conn, framed[:]); err != nil {
		return message.Message[message.StreamBody]{}, rpcerr.NewFatal(normalizeEOF(err))
	}

	bodyLen, err := protocol.DecodeFrameLen(framed[:protocol.FrameLenFieldSize], r.endian)
	if err != nil {
		return message.Message[message.StreamBody]{}, rpcerr.NewFatal(err)
	}
	if bodyLen > r.maxBodyLen {
		return message.Message[message.StreamBody]{}, rpcerr.NewFatal(&rpcerr.PayloadTooLarge{BodyLen: int(bodyLen), MaxLen: r.maxBodyLen})
	}

	header, err := protocol.DecodeHeader(framed[protocol.FrameLenFieldSize:], r.endian)
	if err != nil {
		return message.Message[message.StreamBody]{}, rpcerr.NewFatal(err)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r.conn, body); err != nil {
		return message.Message[message.StreamBody]{}, rpcerr.NewFatal(normalizeEOF(err))
	}

	return message.New(header, message.NewStreamBody(body)), nil
}

// normalizeEOF turns a bare io.EOF (a clean close at a message boundary)
// and io.ErrUnexpectedEOF (a close mid-message) into the same
// connection-aborted error; both are fatal to the read loop.
func normalizeEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &rpcerr.ConnectionAborted{}
	}
	return err
}

type streamWriteHalf struct {
	conn       io.Writer
	maxBodyLen uint32
	endian     protocol.Endian
}

// WriteMessage writes a full frame (length + header + body) in one
// vectored write.
func (w *streamWriteHalf) WriteMessage(header message.Header, body message.StreamBody) error {
	if err := rpcerr.CheckPayloadTooLarge(body.Len(), w.maxBodyLen); err != nil {
		return err
	}

	framed := make([]byte, protocol.FramedHeaderLen)
	protocol.EncodeFrameLen(framed[:protocol.FrameLenFieldSize], body.Len(), w.endian)
	protocol.EncodeHeader(framed[protocol.FrameLenFieldSize:], header, w.endian)

	if conn, ok := w.conn.(net.Conn); ok {
		buffers := net.Buffers{framed, body.Data}
		if _, err := buffers.WriteTo(conn); err != nil {
			return rpcerr.NewFatal(err)
		}
		return nil
	}

	if _, err := w.conn.Write(framed); err != nil {
		return rpcerr.NewFatal(err)
	}
	if len(body.Data) > 0 {
		if _, err := w.conn.Write(body.Data); err != nil {
			return rpcerr.NewFatal(err)
		}
	}
	return nil
}
