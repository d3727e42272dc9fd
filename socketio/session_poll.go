package socketio

import (
	"sync"

	"github.com/eapache/queue"
)

// pollDelivery serves the long-poll transports. Outbound packets wait in
// queue until the client polls; an idle poll is parked in waiting until
// there is something to send. queue is non-empty or waiting is set, never
// both: a poll is only parked while the queue is empty and a send always
// consumes the parked poll.
type pollDelivery struct {
	mu      sync.Mutex
	queue   *queue.Queue
	waiting Conn
}

func newPollDelivery() *pollDelivery {
	return &pollDelivery{queue: queue.New()}
}

func (d *pollDelivery) bind(s *Session, conn Conn, connected bool) {
	if connected {
		_ = s.write(conn, NewPacket(PacketConnect))
		return
	}
	d.mu.Lock()
	switch state := s.State(); {
	case state == SessionDisconnecting:
		d.mu.Unlock()
		if !s.teardown(conn) {
			_ = s.write(conn, NewPacket(PacketDisconnect))
		}
	case state == SessionDisconnected:
		d.mu.Unlock()
		_ = s.write(conn, NewPacket(PacketDisconnect))
	case d.queue.Length() == 0:
		displaced := d.waiting
		d.waiting = conn
		d.mu.Unlock()
		if displaced != nil && displaced != conn {
			_ = s.write(displaced, NewPacket(PacketNoop))
		}
	default:
		packets := d.drainLocked()
		d.mu.Unlock()
		if err := s.write(conn, packets...); err != nil {
			for _, p := range packets {
				d.send(s, p)
			}
		}
	}
}

func (d *pollDelivery) send(s *Session, p *Packet) {
	d.mu.Lock()
	conn := d.waiting
	d.waiting = nil
	if conn == nil || !conn.IsOpen() {
		d.queue.Add(p)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if err := s.write(conn, p); err != nil {
		// conn is closed now, retry against whatever is parked or the queue
		d.send(s, p)
	}
}

// acknowledge answers the first packet of every inbound batch with an ACK
// on the connection that carried it.
func (d *pollDelivery) acknowledge(s *Session, conn Conn, p *Packet) {
	if p.SequenceNumber == 0 && conn != nil && conn.IsOpen() {
		_ = s.write(conn, NewPacket(PacketAck))
	}
}

func (d *pollDelivery) take() Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := d.waiting
	d.waiting = nil
	return conn
}

func (d *pollDelivery) disconnect(s *Session) {
	if conn := d.take(); conn != nil && conn.IsOpen() {
		s.teardown(conn)
		return
	}
	// wait for the next poll to deliver the DISCONNECT packet
	s.heartbeat.scheduleDisconnect()
}

func (d *pollDelivery) forceDisconnect(s *Session) { s.teardown(nil) }

// every poll request speaks for the client, including ?disconnect ones
// that were never parked
func (d *pollDelivery) owns(Conn) bool { return true }

func (d *pollDelivery) release(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.waiting == conn {
		d.waiting = nil
	}
}

func (d *pollDelivery) drain() []*Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainLocked()
}

func (d *pollDelivery) drainLocked() []*Packet {
	packets := make([]*Packet, 0, d.queue.Length())
	for d.queue.Length() > 0 {
		packets = append(packets, d.queue.Remove().(*Packet))
	}
	return packets
}

func (d *pollDelivery) discard(s *Session) {
	if conn := d.take(); conn != nil {
		_ = s.write(conn, NewPacket(PacketNoop))
	}
}

// snapshot returns the queue length and whether a poll is parked.
func (d *pollDelivery) snapshot() (queued int, parked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Length(), d.waiting != nil
}
