package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/result"
)

// Verify-request flag bits (spec §6, "Flag bits on verify requests").
const (
	FlagROA    uint8 = 1 << 0
	FlagBGPsec uint8 = 1 << 1
	FlagASPA   uint8 = 1 << 2
)

// Hello is the HELLO handshake payload: 2-byte protocol version, 4-byte
// proxy ID.
type Hello struct {
	Version uint16
	ProxyID uint32
}

func DecodeHello(payload []byte) (Hello, error) {
	if len(payload) < 6 {
		return Hello{}, fmt.Errorf("wire: HELLO payload truncated: %d bytes", len(payload))
	}
	return Hello{
		Version: binary.BigEndian.Uint16(payload[0:2]),
		ProxyID: binary.BigEndian.Uint32(payload[2:6]),
	}, nil
}

func EncodeHello(h Hello) []byte {
	buf := make([]byte, HeaderSize+6)
	EncodeHeader(buf, Header{Type: TypeHello, TotalLength: uint32(len(buf))})
	binary.BigEndian.PutUint16(buf[HeaderSize:], h.Version)
	binary.BigEndian.PutUint32(buf[HeaderSize+2:], h.ProxyID)
	return buf
}

// HelloResponse is the handshake acknowledgement: 4-byte proxy ID.
type HelloResponse struct {
	ProxyID uint32
}

func DecodeHelloResponse(payload []byte) (HelloResponse, error) {
	if len(payload) < 4 {
		return HelloResponse{}, fmt.Errorf("wire: HELLO_RESPONSE payload truncated: %d bytes", len(payload))
	}
	return HelloResponse{ProxyID: binary.BigEndian.Uint32(payload[0:4])}, nil
}

func EncodeHelloResponse(h HelloResponse) []byte {
	buf := make([]byte, HeaderSize+4)
	EncodeHeader(buf, Header{Type: TypeHelloResponse, TotalLength: uint32(len(buf))})
	binary.BigEndian.PutUint32(buf[HeaderSize:], h.ProxyID)
	return buf
}

// section type tags for the optional trailing data on verify requests.
const (
	sectionASPath     uint8 = 1
	sectionBGPsecBlob uint8 = 2
)

// VerifyRequest is the common decoded shape of VERIFY_V4_REQUEST and
// VERIFY_V6_REQUEST (spec §6); the family distinguishes the two wire
// types and the width of Addr.
type VerifyRequest struct {
	Family       uint8 // afi.IPv4 or afi.IPv6, set by the caller from the packet type
	Flags        uint8
	PrefixLength uint8
	OriginAS     uint32
	Addr         []byte // 4 or 16 bytes, per Family
	UpdateID     uint32
	Path         aspath.Path // zero value if absent
	HasPath      bool
	BGPsecBlob   []byte // nil if absent
}

// addrLenForType returns the fixed address width for a verify-request
// packet type.
func addrLenForType(t Type) (int, error) {
	switch t {
	case TypeVerifyV4Request:
		return 4, nil
	case TypeVerifyV6Request:
		return 16, nil
	default:
		return 0, fmt.Errorf("wire: %v is not a verify-request type", t)
	}
}

// DecodeVerifyRequest parses a VERIFY_V4_REQUEST or VERIFY_V6_REQUEST
// payload. t selects the address width.
func DecodeVerifyRequest(t Type, payload []byte) (VerifyRequest, error) {
	addrLen, err := addrLenForType(t)
	if err != nil {
		return VerifyRequest{}, err
	}
	fixedLen := 1 + 1 + 4 + addrLen + 4
	if len(payload) < fixedLen {
		return VerifyRequest{}, fmt.Errorf("wire: verify-request payload truncated: have %d, need %d", len(payload), fixedLen)
	}

	req := VerifyRequest{
		Flags:        payload[0],
		PrefixLength: payload[1],
		OriginAS:     binary.BigEndian.Uint32(payload[2:6]),
	}
	off := 6
	req.Addr = append([]byte(nil), payload[off:off+addrLen]...)
	off += addrLen
	req.UpdateID = binary.BigEndian.Uint32(payload[off : off+4])
	off += 4

	for off < len(payload) {
		if off+3 > len(payload) {
			return VerifyRequest{}, fmt.Errorf("wire: verify-request optional section header truncated at %d", off)
		}
		sectionType := payload[off]
		sectionLen := int(binary.BigEndian.Uint16(payload[off+1 : off+3]))
		off += 3
		if off+sectionLen > len(payload) {
			return VerifyRequest{}, fmt.Errorf("wire: verify-request optional section body truncated at %d", off)
		}
		body := payload[off : off+sectionLen]
		off += sectionLen

		switch sectionType {
		case sectionASPath:
			path, err := decodeASPath(body)
			if err != nil {
				return VerifyRequest{}, err
			}
			req.Path = path
			req.HasPath = true
		case sectionBGPsecBlob:
			req.BGPsecBlob = append([]byte(nil), body...)
		default:
			// unknown optional sections are skipped, not rejected
		}
	}
	return req, nil
}

// EncodeVerifyRequest serializes a VerifyRequest as packet type t.
func EncodeVerifyRequest(t Type, req VerifyRequest) ([]byte, error) {
	addrLen, err := addrLenForType(t)
	if err != nil {
		return nil, err
	}
	if len(req.Addr) != addrLen {
		return nil, fmt.Errorf("wire: address length %d, want %d for %v", len(req.Addr), addrLen, t)
	}

	var asPathBytes []byte
	if req.HasPath {
		asPathBytes = encodeASPath(req.Path)
	}

	fixedLen := 1 + 1 + 4 + addrLen + 4
	total := HeaderSize + fixedLen
	if req.HasPath {
		total += 3 + len(asPathBytes)
	}
	if len(req.BGPsecBlob) > 0 {
		total += 3 + len(req.BGPsecBlob)
	}

	buf := make([]byte, total)
	EncodeHeader(buf, Header{Type: t, TotalLength: uint32(total)})
	p := buf[HeaderSize:]
	p[0] = req.Flags
	p[1] = req.PrefixLength
	binary.BigEndian.PutUint32(p[2:6], req.OriginAS)
	off := 6
	copy(p[off:off+addrLen], req.Addr)
	off += addrLen
	binary.BigEndian.PutUint32(p[off:off+4], req.UpdateID)
	off += 4

	if req.HasPath {
		p[off] = sectionASPath
		binary.BigEndian.PutUint16(p[off+1:off+3], uint16(len(asPathBytes)))
		off += 3
		copy(p[off:], asPathBytes)
		off += len(asPathBytes)
	}
	if len(req.BGPsecBlob) > 0 {
		p[off] = sectionBGPsecBlob
		binary.BigEndian.PutUint16(p[off+1:off+3], uint16(len(req.BGPsecBlob)))
		off += 3
		copy(p[off:], req.BGPsecBlob)
	}
	return buf, nil
}

// encodeASPath renders a Path the way a BGP AS_PATH attribute is encoded:
// repeated (1-byte segment kind, 1-byte AS count, N x 4-byte AS number)
// segments, destination-to-origin (spec §3), mirroring the teacher's
// AS_PATH attribute layout in internal/bgp/attributes.go.
func encodeASPath(p aspath.Path) []byte {
	n := 0
	for _, seg := range p.Segments {
		n += 2 + 4*len(seg.ASNs)
	}
	out := make([]byte, 0, n)
	for _, seg := range p.Segments {
		out = append(out, byte(seg.Kind), byte(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], asn)
			out = append(out, b[:]...)
		}
	}
	return out
}

func decodeASPath(data []byte) (aspath.Path, error) {
	var path aspath.Path
	off := 0
	for off < len(data) {
		if off+2 > len(data) {
			return aspath.Path{}, fmt.Errorf("wire: AS-path segment header truncated at %d", off)
		}
		kind := aspath.SegmentKind(data[off])
		count := int(data[off+1])
		off += 2
		if off+4*count > len(data) {
			return aspath.Path{}, fmt.Errorf("wire: AS-path segment body truncated at %d", off)
		}
		asns := make([]uint32, count)
		for i := 0; i < count; i++ {
			asns[i] = binary.BigEndian.Uint32(data[off : off+4])
			off += 4
		}
		path.Segments = append(path.Segments, aspath.Segment{Kind: kind, ASNs: asns})
	}
	return path, nil
}

// outcome wire encoding is independent of result.Outcome's Go iota order,
// so either can be reordered without breaking the protocol.
func encodeOutcomeByte(o result.Outcome) byte {
	switch o {
	case result.Valid:
		return 1
	case result.Invalid:
		return 2
	case result.DoNotUse:
		return 3
	case result.Unknown:
		return 4
	case result.Unverifiable:
		return 5
	default:
		return 0 // Undefined
	}
}

func decodeOutcomeByte(b byte) result.Outcome {
	switch b {
	case 1:
		return result.Valid
	case 2:
		return result.Invalid
	case 3:
		return result.DoNotUse
	case 4:
		return result.Unknown
	case 5:
		return result.Unverifiable
	default:
		return result.Undefined
	}
}

// VerifyNotification is the result-push payload (spec §6): a bitmask of
// which axes the notification carries, the three outcome octets, and the
// UpdateID.
type VerifyNotification struct {
	ResultTypeMask uint8
	ROA            result.Outcome
	BGPsec         result.Outcome
	ASPA           result.Outcome
	UpdateID       uint32
}

func EncodeVerifyNotification(n VerifyNotification) []byte {
	buf := make([]byte, HeaderSize+9)
	EncodeHeader(buf, Header{Type: TypeVerifyNotification, TotalLength: uint32(len(buf))})
	p := buf[HeaderSize:]
	p[0] = n.ResultTypeMask
	p[1] = encodeOutcomeByte(n.ROA)
	p[2] = encodeOutcomeByte(n.BGPsec)
	p[3] = encodeOutcomeByte(n.ASPA)
	binary.BigEndian.PutUint32(p[4:8], n.UpdateID)
	return buf
}

func DecodeVerifyNotification(payload []byte) (VerifyNotification, error) {
	if len(payload) < 8 {
		return VerifyNotification{}, fmt.Errorf("wire: VERIFY_NOTIFICATION payload truncated: %d bytes", len(payload))
	}
	return VerifyNotification{
		ResultTypeMask: payload[0],
		ROA:            decodeOutcomeByte(payload[1]),
		BGPsec:         decodeOutcomeByte(payload[2]),
		ASPA:           decodeOutcomeByte(payload[3]),
		UpdateID:       binary.BigEndian.Uint32(payload[4:8]),
	}, nil
}

// DeleteUpdate is the remove-subscription payload: 2-byte keep-window
// (seconds), 4-byte UpdateID.
type DeleteUpdate struct {
	KeepWindow uint16
	UpdateID   uint32
}

func DecodeDeleteUpdate(payload []byte) (DeleteUpdate, error) {
	if len(payload) < 6 {
		return DeleteUpdate{}, fmt.Errorf("wire: DELETE_UPDATE payload truncated: %d bytes", len(payload))
	}
	return DeleteUpdate{
		KeepWindow: binary.BigEndian.Uint16(payload[0:2]),
		UpdateID:   binary.BigEndian.Uint32(payload[2:6]),
	}, nil
}

func EncodeDeleteUpdate(d DeleteUpdate) []byte {
	buf := make([]byte, HeaderSize+6)
	EncodeHeader(buf, Header{Type: TypeDeleteUpdate, TotalLength: uint32(len(buf))})
	p := buf[HeaderSize:]
	binary.BigEndian.PutUint16(p[0:2], d.KeepWindow)
	binary.BigEndian.PutUint32(p[2:6], d.UpdateID)
	return buf
}

// Goodbye is the disconnect payload: 2-byte keep-window.
type Goodbye struct {
	KeepWindow uint16
}

func DecodeGoodbye(payload []byte) (Goodbye, error) {
	if len(payload) < 2 {
		return Goodbye{}, fmt.Errorf("wire: GOODBYE payload truncated: %d bytes", len(payload))
	}
	return Goodbye{KeepWindow: binary.BigEndian.Uint16(payload[0:2])}, nil
}

func EncodeGoodbye(g Goodbye) []byte {
	buf := make([]byte, HeaderSize+2)
	EncodeHeader(buf, Header{Type: TypeGoodbye, TotalLength: uint32(len(buf))})
	binary.BigEndian.PutUint16(buf[HeaderSize:], g.KeepWindow)
	return buf
}

// EncodeSyncRequest builds a SYNC_REQUEST, which carries no payload.
func EncodeSyncRequest() []byte {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, Header{Type: TypeSyncRequest, TotalLength: HeaderSize})
	return buf
}

// EncodeError builds an ERROR packet carrying a 2-byte error code.
func EncodeError(code ErrorCode) []byte {
	buf := make([]byte, HeaderSize+2)
	EncodeHeader(buf, Header{Type: TypeError, TotalLength: uint32(len(buf))})
	binary.BigEndian.PutUint16(buf[HeaderSize:], uint16(code))
	return buf
}

func DecodeError(payload []byte) (ErrorCode, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("wire: ERROR payload truncated: %d bytes", len(payload))
	}
	return ErrorCode(binary.BigEndian.Uint16(payload[0:2])), nil
}
