package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestGroupHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := GroupHeader{TrackID: 7, GroupSequence: 3}
	if err := WriteGroupHeader(&buf, h); err != nil {
		t.Fatal(err)
	}

	got, err := ReadGroupHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestFrameRoundTripOrder(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatal(err)
		}
	}

	for i, want := range payloads {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %q, want %q", i, got, want)
		}
	}

	// Graceful half-close: no more frames, reader sees plain EOF.
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("end-of-group err = %v, want io.EOF", err)
	}
}

func TestZeroLengthFrame(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestEmptyGroupIsImmediateEOF(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestTruncatedFramePayloadIsAborted(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]

	_, err := ReadFrame(bytes.NewReader(truncated))
	if !errors.Is(err, ErrGroupAborted) {
		t.Fatalf("err = %v, want ErrGroupAborted", err)
	}
}
