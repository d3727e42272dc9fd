package socketio

import "sync"

// pushDelivery serves full-duplex transports. There is no queue: the
// transport keeps a single long lived connection, packets sent while it
// is gone are dropped.
type pushDelivery struct {
	mu   sync.Mutex
	conn Conn
}

func (d *pushDelivery) current() Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

func (d *pushDelivery) take() Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := d.conn
	d.conn = nil
	return conn
}

func (d *pushDelivery) bind(s *Session, conn Conn, connected bool) {
	if s.State() >= SessionDisconnecting {
		_ = s.write(conn, NewPacket(PacketDisconnect))
		_ = conn.Close()
		return
	}
	d.mu.Lock()
	prev := d.conn
	d.conn = conn
	d.mu.Unlock()
	if prev != nil && prev != conn {
		_ = prev.Close()
	}
	if connected {
		_ = s.write(conn, NewPacket(PacketConnect))
	}
}

func (d *pushDelivery) send(s *Session, p *Packet) {
	conn := d.current()
	if conn == nil || !conn.IsOpen() {
		s.logger.Debug("no open connection, dropping packet", "type", p.Type().String())
		s.metrics.packetDropped(p.Type())
		return
	}
	_ = s.write(conn, p)
}

func (d *pushDelivery) acknowledge(*Session, Conn, *Packet) {}

func (d *pushDelivery) disconnect(s *Session) { s.teardown(d.take()) }

func (d *pushDelivery) forceDisconnect(*Session) {}

func (d *pushDelivery) owns(conn Conn) bool { return d.current() == conn }

func (d *pushDelivery) release(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == conn {
		d.conn = nil
	}
}

func (d *pushDelivery) drain() []*Packet { return nil }

func (d *pushDelivery) discard(*Session) {
	if conn := d.take(); conn != nil {
		_ = conn.Close()
	}
}
