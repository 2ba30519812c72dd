// Package protocol implements the wire codec shared by every transport:
// encoding and decoding the 12-byte message header, and the 4-byte
// frame-length prefix used by byte-stream transports.
//
// Frame format over a byte stream:
//
//	0          4              8              12             16
//	┌──────────┬──────────────┬──────────────┬──────────────┬───────────────┐
//	│ frame_len│ message_type │  request_id  │  service_id  │ body ...      │
//	│  uint32  │    uint32    │    uint32    │    int32     │ frame_len-12  │
//	└──────────┴──────────────┴──────────────┴──────────────┴───────────────┘
//
// frame_len counts header + body bytes but not itself. Over a datagram
// socket there is no frame_len: one datagram is exactly one header
// followed by one body.
package protocol

import (
	"encoding/binary"

	"peerrpc/message"
	"peerrpc/rpcerr"
)

// HeaderLen is the encoded length of a message header, matching
// message.HeaderLen.
const HeaderLen = message.HeaderLen

// FrameLenFieldSize is the size of the frame-length prefix used by
// byte-stream transports.
const FrameLenFieldSize = 4

// FramedHeaderLen is the combined size of the frame-length prefix and
// the header, as written on a byte-stream transport.
const FramedHeaderLen = FrameLenFieldSize + HeaderLen

// Endian selects the byte order used to encode header fields on the
// wire. The default is little-endian; big-endian is only usable if both
// peers agree on it out of band, since nothing on the wire identifies
// the chosen order.
type Endian struct {
	order binary.ByteOrder
}

// LittleEndian is the default wire byte order.
var LittleEndian = Endian{order: binary.LittleEndian}

// BigEndian is an alternative wire byte order, usable only by prior
// agreement between both peers.
var BigEndian = Endian{order: binary.BigEndian}

// ByteOrder returns the underlying binary.ByteOrder.
func (e Endian) ByteOrder() binary.ByteOrder {
	if e.order == nil {
		return binary.LittleEndian
	}
	return e.order
}

func (e Endian) readU32(b []byte) uint32 {
	return e.ByteOrder().Uint32(b)
}

func (e Endian) writeU32(b []byte, v uint32) {
	e.ByteOrder().PutUint32(b, v)
}

// EncodeHeader writes a message.Header into the first HeaderLen bytes of
// buf, using the given byte order. buf must have length >= HeaderLen.
func EncodeHeader(buf []byte, header message.Header, endian Endian) {
	endian.writeU32(buf[0:4], uint32(header.Type))
	endian.writeU32(buf[4:8], header.RequestID)
	endian.writeU32(buf[8:12], uint32(int32(header.ServiceID)))
}

// DecodeHeader parses a message.Header from the first HeaderLen bytes of
// buf. It validates that the message_type field is in range.
func DecodeHeader(buf []byte, endian Endian) (message.Header, error) {
	rawType := endian.readU32(buf[0:4])
	msgType, ok := message.TypeFromU32(rawType)
	if !ok {
		return message.Header{}, &rpcerr.InvalidMessageType{Value: rawType}
	}
	requestID := endian.readU32(buf[4:8])
	serviceID := int32(endian.readU32(buf[8:12]))
	return message.Header{Type: msgType, RequestID: requestID, ServiceID: serviceID}, nil
}

// EncodeFrameLen writes the 4-byte frame length (header + body, not
// counting the length field itself) into the first 4 bytes of buf.
func EncodeFrameLen(buf []byte, bodyLen int, endian Endian) {
	endian.writeU32(buf[0:4], uint32(bodyLen)+HeaderLen)
}

// DecodeFrameLen reads a 4-byte frame length and returns the body length
// it implies (frame_len - HeaderLen). It reports an error if the frame
// length is smaller than the header itself.
func DecodeFrameLen(buf []byte, endian Endian) (bodyLen uint32, err error) {
	frameLen := endian.readU32(buf[0:4])
	if frameLen < HeaderLen {
		return 0, &rpcerr.ShortMessage{Len: int(frameLen)}
	}
	return frameLen - HeaderLen, nil
}
