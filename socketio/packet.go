package socketio

import (
	"bytes"
	"fmt"
	"strconv"
)

// PacketType is the protocol level kind of a packet.
type PacketType int

const (
	PacketDisconnect PacketType = iota
	PacketConnect
	PacketHeartbeat
	PacketMessage
	PacketJSON
	PacketEvent
	PacketAck
	PacketError
	PacketNoop

	packetNull PacketType = -1
)

func (t PacketType) String() string {
	switch t {
	case PacketDisconnect:
		return "disconnect"
	case PacketConnect:
		return "connect"
	case PacketHeartbeat:
		return "heartbeat"
	case PacketMessage:
		return "message"
	case PacketJSON:
		return "json"
	case PacketEvent:
		return "event"
	case PacketAck:
		return "ack"
	case PacketError:
		return "error"
	case PacketNoop:
		return "noop"
	case packetNull:
		return "null"
	}
	return "unknown"
}

func (t PacketType) valid() bool { return t >= PacketDisconnect && t <= PacketNoop }

// carriesData reports whether the wire form of the type has a data field.
func (t PacketType) carriesData() bool { return t == PacketMessage || t == PacketJSON }

// TransportType is the physical delivery mechanism a packet travelled on.
type TransportType int

const (
	TransportWebsocket TransportType = iota
	TransportXHRPolling
	TransportJSONPPolling
)

func (t TransportType) String() string {
	switch t {
	case TransportWebsocket:
		return "websocket"
	case TransportXHRPolling:
		return "xhr-polling"
	case TransportJSONPPolling:
		return "jsonp-polling"
	}
	return "unknown"
}

func (t TransportType) valid() bool { return t >= TransportWebsocket && t <= TransportJSONPPolling }

// ParseTransportType maps a transport name as it appears in request paths.
func ParseTransportType(name string) (TransportType, error) {
	for t := TransportWebsocket; t <= TransportJSONPPolling; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
}

// Packet is one protocol message. The type is fixed at construction.
type Packet struct {
	typ PacketType

	SessionID string
	Origin    string
	Transport TransportType
	Data      []byte
	// SequenceNumber is the position of the packet in the frame it arrived in.
	SequenceNumber int
	// PollIndex is echoed back by the jsonp-polling response wrapper.
	PollIndex string
}

// NullPacket is what Decode yields for a buffer it can not make sense of.
// It must never be dispatched.
var NullPacket = &Packet{typ: packetNull}

// NewPacket creates a packet of the given type.
func NewPacket(t PacketType) *Packet {
	return &Packet{typ: t}
}

// NewMessagePacket creates a MESSAGE packet carrying data.
func NewMessagePacket(data []byte) *Packet {
	return &Packet{typ: PacketMessage, Data: data}
}

func (p *Packet) Type() PacketType { return p.typ }

func (p *Packet) IsNull() bool { return p == nil || p.typ == packetNull }

func (p *Packet) String() string {
	return fmt.Sprintf("%s(%s)", p.typ, p.Data)
}

const packetDelimiter = ':'

// Encode renders the packet as "type:id:endpoint[:data]". The id and
// endpoint fields are always empty; data is only written for types that
// carry it on the wire.
func Encode(p *Packet) ([]byte, error) {
	if !p.typ.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, p.typ)
	}
	buf := make([]byte, 0, 4+len(p.Data))
	buf = strconv.AppendInt(buf, int64(p.typ), 10)
	buf = append(buf, packetDelimiter, packetDelimiter)
	if p.typ.carriesData() && p.Data != nil {
		buf = append(buf, packetDelimiter)
		buf = append(buf, p.Data...)
	}
	return buf, nil
}

// Decode parses one packet. A buffer without a type delimiter yields
// NullPacket and no error; a type code outside the known range is an error.
func Decode(b []byte) (*Packet, error) {
	typeEnd := bytes.IndexByte(b, packetDelimiter)
	if typeEnd < 0 {
		return NullPacket, nil
	}
	code, err := strconv.Atoi(string(b[:typeEnd]))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacketType, b[:typeEnd])
	}
	t := PacketType(code)
	if !t.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, code)
	}
	p := NewPacket(t)

	rest := b[typeEnd+1:]
	// id field
	idEnd := bytes.IndexByte(rest, packetDelimiter)
	if idEnd < 0 {
		return p, nil
	}
	rest = rest[idEnd+1:]
	// endpoint field, data follows the third delimiter
	endpointEnd := bytes.IndexByte(rest, packetDelimiter)
	if endpointEnd >= 0 && t.carriesData() {
		data := rest[endpointEnd+1:]
		p.Data = make([]byte, len(data))
		copy(p.Data, data)
	}
	return p, nil
}
