package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
)

func TestControlMsgRoundTrip(t *testing.T) {
	t.Parallel()
	payload := []byte("hello")
	var buf bytes.Buffer
	if err := WriteControlMsg(&buf, MsgClientSetup, payload); err != nil {
		t.Fatal(err)
	}

	msgType, got, err := ReadControlMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgClientSetup {
		t.Fatalf("message type = %#x, want %#x", msgType, MsgClientSetup)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestControlMsgEmptyPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteControlMsg(&buf, MsgGoAway, nil); err != nil {
		t.Fatal(err)
	}

	msgType, got, err := ReadControlMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgGoAway {
		t.Fatalf("message type = %#x, want %#x", msgType, MsgGoAway)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

func TestControlMsgTruncatedType(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_, _, err := ReadControlMsg(&buf)
	if err == nil {
		t.Fatal("expected error on empty input")
	}
}

func TestControlMsgTruncatedLength(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	buf.Write(quicvarint.Append(nil, MsgClientSetup))
	buf.WriteByte(0x00) // only 1 of 2 length bytes

	_, _, err := ReadControlMsg(&buf)
	if err == nil {
		t.Fatal("expected error on truncated length")
	}
}

func TestControlMsgTruncatedPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	buf.Write(quicvarint.Append(nil, MsgClientSetup))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.Write([]byte{1, 2, 3}) // only 3 of 10 bytes

	_, _, err := ReadControlMsg(&buf)
	if err == nil {
		t.Fatal("expected error on truncated payload")
	}
}

func TestClientSetupRoundTrip(t *testing.T) {
	t.Parallel()
	cs := ClientSetup{Versions: []uint64{Version}, Path: "/moq", HasPath: true}
	got, err := ParseClientSetup(SerializeClientSetup(cs))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Versions) != 1 || got.Versions[0] != Version {
		t.Fatalf("versions = %v", got.Versions)
	}
	if !got.HasPath || got.Path != "/moq" {
		t.Fatalf("path = %q (has=%v)", got.Path, got.HasPath)
	}
}

func TestClientSetupNoPath(t *testing.T) {
	t.Parallel()
	cs := ClientSetup{Versions: []uint64{Version, 0xff000010}}
	got, err := ParseClientSetup(SerializeClientSetup(cs))
	if err != nil {
		t.Fatal(err)
	}
	if got.HasPath {
		t.Fatal("expected no path")
	}
	if len(got.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(got.Versions))
	}
}

func TestClientSetupTruncated(t *testing.T) {
	t.Parallel()
	_, err := ParseClientSetup([]byte{})
	if err == nil {
		t.Fatal("expected error on empty input")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func TestServerSetupRoundTrip(t *testing.T) {
	t.Parallel()
	ss := ServerSetup{SelectedVersion: Version, MaxRequestID: 50}
	got, err := ParseServerSetup(SerializeServerSetup(ss))
	if err != nil {
		t.Fatal(err)
	}
	if got.SelectedVersion != Version || got.MaxRequestID != 50 {
		t.Fatalf("got %+v", got)
	}
}

func TestAnnounceRoundTrip(t *testing.T) {
	t.Parallel()
	got, err := ParseAnnounce(SerializeAnnounce("alice/camera"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "alice/camera" || !got.Active {
		t.Fatalf("got %+v", got)
	}
}

func TestUnannounceRoundTrip(t *testing.T) {
	t.Parallel()
	got, err := ParseUnannounce(SerializeUnannounce("alice/camera"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "alice/camera" || got.Active {
		t.Fatalf("got %+v", got)
	}
}

func TestSubscribeRoundTripNextGroupStart(t *testing.T) {
	t.Parallel()
	s := Subscribe{
		RequestID:  1,
		Path:       "alice/camera",
		TrackName:  "video",
		Priority:   128,
		GroupOrder: GroupOrderDescending,
		FilterType: FilterNextGroupStart,
	}
	got, err := ParseSubscribe(SerializeSubscribe(s))
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != 1 || got.Path != "alice/camera" || got.TrackName != "video" {
		t.Fatalf("got %+v", got)
	}
	if got.Priority != 128 || got.GroupOrder != GroupOrderDescending {
		t.Fatalf("got %+v", got)
	}
}

func TestSubscribeRoundTripAbsoluteRange(t *testing.T) {
	t.Parallel()
	s := Subscribe{
		RequestID:  4,
		Path:       "alice/camera",
		TrackName:  "video",
		FilterType: FilterAbsoluteRange,
		StartGroup: 10,
		StartObj:   5,
		EndGroup:   20,
	}
	got, err := ParseSubscribe(SerializeSubscribe(s))
	if err != nil {
		t.Fatal(err)
	}
	if got.StartGroup != 10 || got.StartObj != 5 || got.EndGroup != 20 {
		t.Fatalf("range = (%d, %d) - %d, want (10, 5) - 20", got.StartGroup, got.StartObj, got.EndGroup)
	}
}

func TestSubscribeOKRoundTripNoContent(t *testing.T) {
	t.Parallel()
	sok := SubscribeOK{RequestID: 1, TrackID: 0, GroupOrder: GroupOrderDescending}
	got, err := ParseSubscribeOK(SerializeSubscribeOK(sok))
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentExists {
		t.Fatal("expected ContentExists=false")
	}
	if got.RequestID != 1 || got.GroupOrder != GroupOrderDescending {
		t.Fatalf("got %+v", got)
	}
}

func TestSubscribeOKRoundTripWithContent(t *testing.T) {
	t.Parallel()
	sok := SubscribeOK{
		RequestID:     2,
		TrackID:       5,
		Expires:       30,
		GroupOrder:    GroupOrderAscending,
		ContentExists: true,
		LargestGroup:  42,
		LargestObj:    7,
	}
	got, err := ParseSubscribeOK(SerializeSubscribeOK(sok))
	if err != nil {
		t.Fatal(err)
	}
	if !got.ContentExists || got.LargestGroup != 42 || got.LargestObj != 7 {
		t.Fatalf("got %+v", got)
	}
}

func TestSubscribeErrorRoundTrip(t *testing.T) {
	t.Parallel()
	se := SubscribeError{RequestID: 3, ErrorCode: 404, ReasonPhrase: "track not found"}
	got, err := ParseSubscribeError(SerializeSubscribeError(se))
	if err != nil {
		t.Fatal(err)
	}
	if got.ErrorCode != 404 || got.ReasonPhrase != "track not found" {
		t.Fatalf("got %+v", got)
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	got, err := ParseUnsubscribe(SerializeUnsubscribe(Unsubscribe{RequestID: 42}))
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != 42 {
		t.Fatalf("requestID = %d, want 42", got.RequestID)
	}
}

func TestGoAwayRoundTrip(t *testing.T) {
	t.Parallel()
	payload := SerializeGoAway(GoAway{NewSessionURI: "https://example.com/moq"})
	r := newBufReader(payload)
	uri, err := r.readVarIntBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(uri) != "https://example.com/moq" {
		t.Fatalf("URI = %q", uri)
	}
}

func TestMaxRequestIDRoundTrip(t *testing.T) {
	t.Parallel()
	payload := SerializeMaxRequestID(99)
	r := newBufReader(payload)
	val, err := r.readVarint()
	if err != nil {
		t.Fatal(err)
	}
	if val != 99 {
		t.Fatalf("maxRequestID = %d, want 99", val)
	}
}

func TestBufReaderEOF(t *testing.T) {
	t.Parallel()
	r := newBufReader([]byte{})

	if _, err := r.readVarint(); err != io.ErrUnexpectedEOF {
		t.Fatalf("readVarint err = %v, want ErrUnexpectedEOF", err)
	}
	if _, err := r.readByte(); err != io.ErrUnexpectedEOF {
		t.Fatalf("readByte err = %v, want ErrUnexpectedEOF", err)
	}
	if _, err := r.readVarIntBytes(); err != io.ErrUnexpectedEOF {
		t.Fatalf("readVarIntBytes err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestVarIntBytesRoundTrip(t *testing.T) {
	t.Parallel()
	data := []byte("test payload")
	encoded := appendVarIntBytes(nil, data)

	r := newBufReader(encoded)
	decoded, err := r.readVarIntBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("decoded = %q, want %q", decoded, data)
	}
}
