package mdnssd

import (
	"context"
	"net"
	"net/netip"
	"strconv"

	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
)

// Transport enumerates local addresses and binds UDP sockets.
type Transport interface {
	// Interfaces returns the addresses of the host's usable interfaces. It
	// fails with ErrNoNetwork when there are none.
	Interfaces(ctx context.Context) ([]string, error)

	// Bind opens a UDP socket on addr:port. It fails with *BindError.
	Bind(ctx context.Context, addr string, port int) (Conn, error)
}

// Conn is a bound UDP socket owned by one Finder.
type Conn interface {
	// JoinGroup subscribes the socket to a multicast group. It fails with
	// *GroupJoinError.
	JoinGroup(group netip.Addr) error

	Send(ctx context.Context, b []byte, dst netip.AddrPort) error

	// ReadFrom blocks until a datagram arrives or the socket is closed.
	ReadFrom(b []byte) (int, netip.AddrPort, error)

	LocalAddr() netip.AddrPort
	Close() error
}

// UDPTransport is the Transport backed by the host's network stack.
type UDPTransport struct{}

// NewUDPTransport returns the default transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// Interfaces lists the addresses of every interface that is up, skipping
// loopback. IPv6 addresses are included; the finder filters them.
func (*UDPTransport) Interfaces(ctx context.Context) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifaddrs, err := iface.Addrs()
		if err != nil {
			logger.Debug("Skipping interface", "interface", iface.Name, "error", err)
			continue
		}
		for _, addr := range ifaddrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				addrs = append(addrs, ipnet.IP.String())
			}
		}
	}

	if len(addrs) == 0 {
		return nil, ErrNoNetwork
	}
	return addrs, nil
}

// Bind opens an IPv4 UDP socket. Address reuse is enabled where the platform
// supports it so the mDNS port can be shared with a system responder.
func (*UDPTransport) Bind(ctx context.Context, addr string, port int) (Conn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Addr: addr, Port: port, Err: err}
	}
	conn := pc.(*net.UDPConn)
	return &udpConn{conn: conn, pconn: ipv4.NewPacketConn(conn)}, nil
}

type udpConn struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
}

// JoinGroup joins group on every multicast capable interface that is up.
// It succeeds if at least one interface joined.
func (c *udpConn) JoinGroup(group netip.Addr) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return &GroupJoinError{Group: group, Err: err}
	}

	gaddr := &net.UDPAddr{IP: net.IP(group.AsSlice())}
	joined := 0
	var errs error
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := c.pconn.JoinGroup(iface, gaddr); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Debug("Joined multicast group", "group", group, "interface", iface.Name)
		joined++
	}

	if joined == 0 {
		if errs == nil {
			errs = ErrNoNetwork
		}
		return &GroupJoinError{Group: group, Err: errs}
	}
	return nil
}

func (c *udpConn) Send(ctx context.Context, b []byte, dst netip.AddrPort) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := c.conn.WriteToUDPAddrPort(b, dst)
	return err
}

func (c *udpConn) ReadFrom(b []byte) (int, netip.AddrPort, error) {
	n, from, err := c.conn.ReadFromUDPAddrPort(b)
	return n, netip.AddrPortFrom(from.Addr().Unmap(), from.Port()), err
}

func (c *udpConn) LocalAddr() netip.AddrPort {
	if addr, ok := c.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.AddrPort()
	}
	return netip.AddrPort{}
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}
