package wire

import (
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// GroupHeader is the fixed header written once at the start of every group
// stream, before any frames.
type GroupHeader struct {
	TrackID       uint64
	GroupSequence uint64
}

// WriteGroupHeader writes the group header to w. It is always written as a
// single Write call so that header and first frame cannot interleave with
// another writer sharing the same underlying connection's scheduling.
func WriteGroupHeader(w io.Writer, h GroupHeader) error {
	var buf []byte
	buf = quicvarint.Append(buf, h.TrackID)
	buf = quicvarint.Append(buf, h.GroupSequence)
	_, err := w.Write(buf)
	return err
}

// ReadGroupHeader reads the group header from a freshly accepted stream.
func ReadGroupHeader(r io.Reader) (GroupHeader, error) {
	br := asByteReader(r)

	trackID, err := quicvarint.Read(br)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "track_id", Err: err}
	}
	seq, err := quicvarint.Read(br)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "group_sequence", Err: err}
	}
	return GroupHeader{TrackID: trackID, GroupSequence: seq}, nil
}

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var buf []byte
	buf = quicvarint.Append(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r. It returns io.EOF
// (unwrapped, via errors.Is) when the stream has been gracefully
// half-closed with no further frame pending, which the caller treats as
// end-of-group. Any other error, including io.ErrUnexpectedEOF from a
// partially written frame, is reported as an aborted group.
func ReadFrame(r io.Reader) ([]byte, error) {
	br := asByteReader(r)

	first, err := br.ReadByte()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrGroupAborted, err)
	}
	// Decode the rest of the length varint by hand so that a stream ending
	// inside it is an aborted group, not a clean end-of-group.
	length := uint64(first & 0x3f)
	for i := 1; i < 1<<(first>>6); i++ {
		b, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGroupAborted, io.ErrUnexpectedEOF)
		}
		length = length<<8 | uint64(b)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGroupAborted, err)
		}
	}
	return payload, nil
}

// asByteReader adapts an io.Reader to io.ByteReader, which the varint
// decoding here requires. bytes.Buffer and bytes.Reader are used as-is;
// quic-go streams do not implement io.ByteReader and are wrapped in a
// singleByteReader. No buffering is added, so frame payloads read directly
// from r afterwards stay aligned.
func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

// singleByteReader is a minimal io.ByteReader adapter for readers that do
// not implement io.ByteReader themselves, which includes incoming QUIC
// group streams. It reads one byte at a time from the underlying reader.
type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}
