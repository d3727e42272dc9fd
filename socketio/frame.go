package socketio

import (
	"bytes"
	"fmt"
	"strconv"
)

// frameDelimiter is U+FFFD in UTF-8. Multi-packet frames prefix every
// packet with DELIM <length> DELIM where length counts code points, as
// the browser side measures strings in characters rather than bytes.
var frameDelimiter = []byte("\uFFFD")

// EncodeFrame serializes packets for one write. A single packet is
// written without any framing.
func EncodeFrame(packets ...*Packet) ([]byte, error) {
	if len(packets) == 1 {
		return Encode(packets[0])
	}
	var buf bytes.Buffer
	for _, p := range packets {
		encoded, err := Encode(p)
		if err != nil {
			return nil, err
		}
		buf.Write(frameDelimiter)
		buf.WriteString(strconv.Itoa(charCount(encoded)))
		buf.Write(frameDelimiter)
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

// DecodeFrame splits a transport payload into packets. Undecodable
// chunks are skipped; every packet is tagged with its position in the frame.
func DecodeFrame(b []byte) ([]*Packet, error) {
	var packets []*Packet
	for len(b) > 0 {
		var chunk []byte
		if bytes.HasPrefix(b, frameDelimiter) {
			b = b[len(frameDelimiter):]
			end := bytes.Index(b, frameDelimiter)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated length prefix", ErrMalformedFrame)
			}
			chars, err := strconv.Atoi(string(b[:end]))
			if err != nil || chars < 0 {
				return nil, fmt.Errorf("%w: bad length %q", ErrMalformedFrame, b[:end])
			}
			b = b[end+len(frameDelimiter):]
			n, ok := byteLength(b, chars)
			if !ok {
				return nil, fmt.Errorf("%w: length %d exceeds payload", ErrMalformedFrame, chars)
			}
			chunk, b = b[:n], b[n:]
		} else {
			chunk, b = b, nil
		}
		p, err := Decode(chunk)
		if err != nil {
			return nil, err
		}
		if p.IsNull() {
			continue
		}
		p.SequenceNumber = len(packets)
		packets = append(packets, p)
	}
	return packets, nil
}

// utf8Width returns the sequence length announced by a UTF-8 leading
// byte, following the original 1-6 byte pattern table. Stray
// continuation bytes count as a character of their own.
func utf8Width(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	case b&0xFC == 0xF8:
		return 5
	case b&0xFE == 0xFC:
		return 6
	}
	return 1
}

func charCount(b []byte) int {
	n := 0
	for i := 0; i < len(b); i += utf8Width(b[i]) {
		n++
	}
	return n
}

// byteLength converts a character count at the start of b into a byte count.
func byteLength(b []byte, chars int) (int, bool) {
	i := 0
	for ; chars > 0; chars-- {
		if i >= len(b) {
			return 0, false
		}
		i += utf8Width(b[i])
	}
	if i > len(b) {
		return 0, false
	}
	return i, true
}
