package subagent

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single frame body.
const MaxMessageSize = 64 * 1024

const headerSize = 4

// ProtocolError reports a malformed or unexpected exchange on an approval
// channel. Callers treat every ProtocolError as a denial.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("approval protocol: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

var (
	errFrameTooLarge = errors.New("frame exceeds maximum size")
	errEmptyFrame    = errors.New("empty frame")
)

// WriteFrame encodes v as JSON and writes it with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &ProtocolError{Op: "encode", Err: err}
	}
	if len(body) > MaxMessageSize {
		return &ProtocolError{Op: "encode", Err: errFrameTooLarge}
	}
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and decodes it into v.
// A clean EOF before any header byte is returned as io.EOF.
func ReadFrame(r io.Reader, v any) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	switch {
	case n == 0:
		return &ProtocolError{Op: "decode", Err: errEmptyFrame}
	case n > MaxMessageSize:
		return &ProtocolError{Op: "decode", Err: fmt.Errorf("%w: %d bytes", errFrameTooLarge, n)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return &ProtocolError{Op: "decode", Err: fmt.Errorf("short body: %w", err)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ProtocolError{Op: "decode", Err: err}
	}
	return nil
}
