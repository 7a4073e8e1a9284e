// Package wire encodes and decodes the framed packet types exchanged
// between a proxy router and the validation server (spec §6). The raw
// byte-stream framing (turning a TCP stream into discrete buffers) is the
// "external socket layer" collaborator; this package only interprets an
// already-framed buffer.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type is the 1-byte PDU type tag (spec §6). Values are this
// implementation's own assignment — the spec names the set but not the
// wire byte values, so these constants are the single source of truth
// for both directions of the codec.
type Type uint8

const (
	TypeHello Type = iota + 1
	TypeHelloResponse
	TypeVerifyV4Request
	TypeVerifyV6Request
	TypeVerifyNotification
	TypeSignRequest
	TypeDeleteUpdate
	TypeGoodbye
	TypeSyncRequest
	TypeError
	// TypePeerChange is not part of the payload table in spec §6 but is
	// named in the dispatch state machine (spec §4.6) as a log-and-ignore
	// message, mirroring the original's PDU_SRXPROXY_PEER_CHANGE.
	TypePeerChange
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeHelloResponse:
		return "HELLO_RESPONSE"
	case TypeVerifyV4Request:
		return "VERIFY_V4_REQUEST"
	case TypeVerifyV6Request:
		return "VERIFY_V6_REQUEST"
	case TypeVerifyNotification:
		return "VERIFY_NOTIFICATION"
	case TypeSignRequest:
		return "SIGN_REQUEST"
	case TypeDeleteUpdate:
		return "DELETE_UPDATE"
	case TypeGoodbye:
		return "GOODBYE"
	case TypeSyncRequest:
		return "SYNC_REQUEST"
	case TypeError:
		return "ERROR"
	case TypePeerChange:
		return "PEER_CHANGE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// ErrorCode is the 2-byte payload of an ERROR packet (spec §6).
type ErrorCode uint16

const (
	ErrWrongVersion ErrorCode = iota + 1
	ErrDuplicateProxyID
	ErrInternalError
	ErrInvalidPacket
	ErrUpdateNotFound
)

func (e ErrorCode) String() string {
	switch e {
	case ErrWrongVersion:
		return "WRONG_VERSION"
	case ErrDuplicateProxyID:
		return "DUPLICATE_PROXY_ID"
	case ErrInternalError:
		return "INTERNAL_ERROR"
	case ErrInvalidPacket:
		return "INVALID_PACKET"
	case ErrUpdateNotFound:
		return "UPDATE_NOT_FOUND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(e))
	}
}

// HeaderSize is the fixed 8-byte common header: 1-byte type, 1-byte
// reserved/flags, 2-byte auxiliary field, 4-byte total length, all
// big-endian (spec §6).
const HeaderSize = 8

// Header is the common PDU header present on every packet.
type Header struct {
	Type        Type
	Reserved    uint8
	Aux         uint16
	TotalLength uint32 // includes the 8-byte header itself
}

// DecodeHeader parses the fixed header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: header truncated: have %d bytes, need %d", len(buf), HeaderSize)
	}
	h := Header{
		Type:        Type(buf[0]),
		Reserved:    buf[1],
		Aux:         binary.BigEndian.Uint16(buf[2:4]),
		TotalLength: binary.BigEndian.Uint32(buf[4:8]),
	}
	if h.TotalLength < HeaderSize {
		return Header{}, fmt.Errorf("wire: total length %d smaller than header size %d", h.TotalLength, HeaderSize)
	}
	return h, nil
}

// EncodeHeader writes h's 8 bytes to the front of buf, which must be at
// least HeaderSize long.
func EncodeHeader(buf []byte, h Header) {
	buf[0] = uint8(h.Type)
	buf[1] = h.Reserved
	binary.BigEndian.PutUint16(buf[2:4], h.Aux)
	binary.BigEndian.PutUint32(buf[4:8], h.TotalLength)
}
