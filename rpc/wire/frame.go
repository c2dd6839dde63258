// Package wire implements the Native protocol's length-prefixed frame
// codec: a fixed-size pre-header followed by a header section and a body
// section, grounded on the teacher's net.PreHead/net.DecodeCSPkg pattern
// (net/prehead.go). Unlike the teacher's PreHead, which carries only two
// lengths because routing lives in a separate RouteHead, the Native
// protocol's header here also carries the call id and method name, since
// the rpc core has no external route-header collaborator.
package wire

import (
	"encoding/binary"
	"errors"
)

// PreHeadSize is the fixed size of the frame's length prefix: two uint32s,
// little-endian, exactly as net/prehead.go lays out HdrSize/BodySize.
const PreHeadSize = 8

// PreHead is the frame's length prefix.
type PreHead struct {
	HdrSize  uint32
	BodySize uint32
}

// EncodePreHead renders hdr as its 8-byte wire form.
func EncodePreHead(hdr PreHead) []byte {
	buf := make([]byte, PreHeadSize)
	binary.LittleEndian.PutUint32(buf[0:4], hdr.HdrSize)
	binary.LittleEndian.PutUint32(buf[4:8], hdr.BodySize)
	return buf
}

// DecodePreHead parses the 8-byte prefix. An HdrSize of 0 is rejected the
// same way net/prehead.go rejects it -- a Native frame always carries at
// least a call id.
func DecodePreHead(buf []byte) (PreHead, error) {
	if len(buf) < PreHeadSize {
		return PreHead{}, errors.New("wire: prehead buffer too small")
	}
	hdr := PreHead{
		HdrSize:  binary.LittleEndian.Uint32(buf[0:4]),
		BodySize: binary.LittleEndian.Uint32(buf[4:8]),
	}
	if hdr.HdrSize == 0 {
		return hdr, errors.New("wire: invalid prehead, HdrSize is zero")
	}
	return hdr, nil
}

// Header is the Native frame's header section: the call id plus the method
// name used for peer-side routing (out of scope for the core itself, but
// carried on the wire so a real dispatcher could use it).
type Header struct {
	CallID uint64
	Method string
}

// EncodeHeader renders h as its wire form: an 8-byte call id, a 2-byte
// method length, then the method bytes.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, 8+2+len(h.Method))
	binary.LittleEndian.PutUint64(buf[0:8], h.CallID)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(h.Method)))
	copy(buf[10:], h.Method)
	return buf
}

// DecodeHeader parses a header section produced by EncodeHeader.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < 10 {
		return Header{}, errors.New("wire: header buffer too small")
	}
	callID := binary.LittleEndian.Uint64(buf[0:8])
	methodLen := binary.LittleEndian.Uint16(buf[8:10])
	if len(buf) < 10+int(methodLen) {
		return Header{}, errors.New("wire: header buffer truncated")
	}
	return Header{CallID: callID, Method: string(buf[10 : 10+methodLen])}, nil
}

// EncodeFrame assembles a complete Native frame -- prehead, header, body --
// ready to hand to an OutboundTransfer as its slices.
func EncodeFrame(h Header, body []byte) [][]byte {
	headerBytes := EncodeHeader(h)
	pre := EncodePreHead(PreHead{HdrSize: uint32(len(headerBytes)), BodySize: uint32(len(body))})
	return [][]byte{pre, headerBytes, body}
}
