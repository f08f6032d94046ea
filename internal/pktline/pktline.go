// Package pktline implements the length-prefixed binary framing used
// by the fetch/upload negotiation: every frame starts
// with a 4-character hex ASCII length header covering the frame as a
// whole (header included), or the literal "0000" for a flush packet
// carrying no payload.
package pktline

import (
	"fmt"
	"io"
)

// MinLen and MaxLen bound the total frame length (header included) a
// sender may declare: length is either 0 (flush) or in [4, 65520].
const (
	MinLen = 4
	MaxLen = 65520
	// MaxPayloadLen is the largest payload Write/Writef may accept.
	MaxPayloadLen = MaxLen - 4
)

// ErrMalformed is returned when a frame's length header is out of
// range or not valid hex; the receiver treats this as fatal.
var ErrMalformed = fmt.Errorf("pktline: malformed frame length")

// Write formats payload as one frame and writes it to w: a 4-hex-digit
// length header covering the header itself, then the payload bytes
// verbatim.
func Write(w io.Writer, payload []byte) error {
	total := len(payload) + 4
	if total > MaxLen {
		return fmt.Errorf("pktline: payload too large: %d bytes", len(payload))
	}
	if _, err := fmt.Fprintf(w, "%04x", total); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Writef formats its arguments with fmt.Sprintf and writes the result
// as one frame; every textual negotiation message (want, have, ack,
// nak, done, ref advertisement lines) is written this way.
func Writef(w io.Writer, format string, a ...interface{}) error {
	return Write(w, []byte(fmt.Sprintf(format, a...)))
}

// Flush writes the zero-length flush packet "0000".
func Flush(w io.Writer) error {
	_, err := io.WriteString(w, "0000")
	return err
}

// Read parses one frame header from r and returns its payload. A
// flush packet ("0000") yields a nil payload and ok=false; any other
// well-formed frame yields its payload and ok=true. An I/O error
// during the header read surfaces as-is (including io.EOF, letting a
// reader distinguish "peer closed the stream" from "peer sent a
// malformed frame").
func Read(r io.Reader) (payload []byte, ok bool, err error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, false, err
	}
	length, err := parseHeader(header)
	if err != nil {
		return nil, false, err
	}
	if length == 0 {
		return nil, false, nil
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func parseHeader(header [4]byte) (int, error) {
	var length int
	for _, c := range header {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return 0, ErrMalformed
		}
		length = length<<4 | v
	}
	if length == 0 {
		return 0, nil
	}
	if length < MinLen || length > MaxLen {
		return 0, fmt.Errorf("%w: %d", ErrMalformed, length)
	}
	return length, nil
}
