package wire

import (
	"testing"

	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/result"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, Header{Type: TypeHello, Reserved: 0, Aux: 0xBEEF, TotalLength: 42})

	want := []byte{byte(TypeHello), 0x00, 0xBE, 0xEF, 0x00, 0x00, 0x00, 0x2A}
	for i, b := range want {
		if buf[i] != b {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], b)
		}
	}

	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Type != TypeHello || h.Aux != 0xBEEF || h.TotalLength != 42 {
		t.Fatalf("round-trip mismatch: %+v", h)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on truncated header")
	}
}

func TestDecodeHeaderTotalLengthTooSmall(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, Header{Type: TypeHello, TotalLength: 3})
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatal("expected error when total length is smaller than the header itself")
	}
}

func TestHelloRoundTrip(t *testing.T) {
	buf := EncodeHello(Hello{Version: 3, ProxyID: 0xDEADBEEF})

	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Type != TypeHello {
		t.Fatalf("type = %v, want HELLO", h.Type)
	}

	got, err := DecodeHello(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if got.Version != 3 || got.ProxyID != 0xDEADBEEF {
		t.Fatalf("got %+v", got)
	}
}

func TestHelloResponseRoundTrip(t *testing.T) {
	buf := EncodeHelloResponse(HelloResponse{ProxyID: 7})
	got, err := DecodeHelloResponse(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeHelloResponse: %v", err)
	}
	if got.ProxyID != 7 {
		t.Fatalf("got %+v", got)
	}
}

func TestVerifyV4RequestRoundTripNoOptionalSections(t *testing.T) {
	req := VerifyRequest{
		Flags:        FlagROA | FlagASPA,
		PrefixLength: 24,
		OriginAS:     65000,
		Addr:         []byte{10, 0, 0, 0},
		UpdateID:     0x0001,
	}
	buf, err := EncodeVerifyRequest(TypeVerifyV4Request, req)
	if err != nil {
		t.Fatalf("EncodeVerifyRequest: %v", err)
	}

	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if int(h.TotalLength) != len(buf) {
		t.Fatalf("total length %d != buffer length %d", h.TotalLength, len(buf))
	}

	got, err := DecodeVerifyRequest(TypeVerifyV4Request, buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeVerifyRequest: %v", err)
	}
	if got.Flags != req.Flags || got.PrefixLength != 24 || got.OriginAS != 65000 || got.UpdateID != 1 {
		t.Fatalf("got %+v", got)
	}
	if string(got.Addr) != string(req.Addr) {
		t.Fatalf("addr = %v, want %v", got.Addr, req.Addr)
	}
	if got.HasPath || got.BGPsecBlob != nil {
		t.Fatalf("expected no optional sections, got %+v", got)
	}
}

func TestVerifyV6RequestRoundTripWithPathAndBGPsecBlob(t *testing.T) {
	req := VerifyRequest{
		Flags:        FlagROA | FlagBGPsec | FlagASPA,
		PrefixLength: 48,
		OriginAS:     100,
		Addr:         make([]byte, 16),
		UpdateID: 0x2A,
		HasPath:  true,
		Path: aspath.Path{Segments: []aspath.Segment{
			{Kind: aspath.Sequence, ASNs: []uint32{400, 200, 100}},
		}},
		BGPsecBlob: []byte{0xAA, 0xBB, 0xCC},
	}
	buf, err := EncodeVerifyRequest(TypeVerifyV6Request, req)
	if err != nil {
		t.Fatalf("EncodeVerifyRequest: %v", err)
	}

	got, err := DecodeVerifyRequest(TypeVerifyV6Request, buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeVerifyRequest: %v", err)
	}
	if !got.HasPath {
		t.Fatal("expected HasPath true")
	}
	if got.Path.Len() != 3 || got.Path.Flatten()[0] != 400 {
		t.Fatalf("path mismatch: %+v", got.Path)
	}
	if string(got.BGPsecBlob) != string(req.BGPsecBlob) {
		t.Fatalf("bgpsec blob mismatch: %v", got.BGPsecBlob)
	}
}

func TestVerifyRequestWrongAddrLenRejected(t *testing.T) {
	req := VerifyRequest{Addr: []byte{1, 2, 3}} // 3 bytes, not 4
	if _, err := EncodeVerifyRequest(TypeVerifyV4Request, req); err == nil {
		t.Fatal("expected error for wrong address length")
	}
}

func TestVerifyNotificationRoundTrip(t *testing.T) {
	n := VerifyNotification{
		ResultTypeMask: FlagROA | FlagASPA,
		ROA:            result.Valid,
		BGPsec:         result.DoNotUse,
		ASPA:           result.Invalid,
		UpdateID:       0x0001,
	}
	buf := EncodeVerifyNotification(n)
	got, err := DecodeVerifyNotification(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeVerifyNotification: %v", err)
	}
	if got.ResultTypeMask != n.ResultTypeMask || got.ROA != n.ROA || got.BGPsec != n.BGPsec || got.ASPA != n.ASPA || got.UpdateID != n.UpdateID {
		t.Fatalf("got %+v, want %+v", got, n)
	}
}

func TestDeleteUpdateRoundTrip(t *testing.T) {
	buf := EncodeDeleteUpdate(DeleteUpdate{KeepWindow: 30, UpdateID: 9})
	got, err := DecodeDeleteUpdate(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeDeleteUpdate: %v", err)
	}
	if got.KeepWindow != 30 || got.UpdateID != 9 {
		t.Fatalf("got %+v", got)
	}
}

func TestGoodbyeRoundTrip(t *testing.T) {
	buf := EncodeGoodbye(Goodbye{KeepWindow: 15})
	got, err := DecodeGoodbye(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeGoodbye: %v", err)
	}
	if got.KeepWindow != 15 {
		t.Fatalf("got %+v", got)
	}
}

func TestSyncRequestHasNoPayload(t *testing.T) {
	buf := EncodeSyncRequest()
	if len(buf) != HeaderSize {
		t.Fatalf("SYNC_REQUEST length = %d, want %d", len(buf), HeaderSize)
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Type != TypeSyncRequest {
		t.Fatalf("type = %v, want SYNC_REQUEST", h.Type)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	buf := EncodeError(ErrDuplicateProxyID)
	got, err := DecodeError(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if got != ErrDuplicateProxyID {
		t.Fatalf("got %v, want ErrDuplicateProxyID", got)
	}
}

func TestTypeAndErrorCodeStringers(t *testing.T) {
	if TypeHello.String() != "HELLO" {
		t.Fatalf("TypeHello.String() = %q", TypeHello.String())
	}
	if Type(0xFF).String() == "" {
		t.Fatal("unknown type should still stringify")
	}
	if ErrUpdateNotFound.String() != "UPDATE_NOT_FOUND" {
		t.Fatalf("ErrUpdateNotFound.String() = %q", ErrUpdateNotFound.String())
	}
}
