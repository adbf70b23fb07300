// Package sock manages the UDP socket. The socket can send and receive UDP datagrams
// and optionally join IPv4 multicast groups. Received datagrams are fanned out to subscribers.
package sock

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/net/ipv4"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/util/assert"
	"bjoernblessin.de/groupstack/util/logger"
	"bjoernblessin.de/groupstack/util/observer"
)

type Socket interface {
	// GetLocalAddress returns the local address of the UDP socket.
	// It errors if the socket is not open.
	GetLocalAddress() (netip.AddrPort, error)

	// MustGetLocalAddress returns the local address of the UDP socket.
	// It panics if the socket is not open.
	MustGetLocalAddress() netip.AddrPort

	// SendTo sends one datagram to addr.
	// Open() must be called before using this function.
	SendTo(addr netip.AddrPort, data []byte) error

	// Open binds the socket to addr. Port 0 picks a random port.
	// Returns the bound local address.
	Open(addr netip.AddrPort) (netip.AddrPort, error)

	// JoinGroup subscribes the socket to an IPv4 multicast group on the named interface.
	// An empty interface name lets the system choose.
	JoinGroup(group netip.Addr, ifname string) error

	// Close closes the UDP socket if it's open.
	// Subscribers are kept, they will receive datagrams from future sockets.
	Close() error

	// Subscribe registers an observer that receives every datagram read from the socket.
	Subscribe() chan *Packet

	// Unsubscribe removes and closes a channel returned by Subscribe.
	Unsubscribe(ch chan *Packet)
}

type Packet struct {
	Addr netip.AddrPort
	Data []byte
}

var (
	ErrNotOpen      = errors.New("UDP socket is not open")
	ErrNotMulticast = errors.New("address is not an IPv4 multicast group")
)

type udpSocket struct {
	mu               sync.RWMutex
	conn             *net.UDPConn
	mcast            *ipv4.PacketConn
	joined           []netip.Addr
	packetObservable *observer.Observable[*Packet]
}

func NewUDPSocket() *udpSocket {
	return &udpSocket{
		packetObservable: observer.NewObservable[*Packet](common.SOCKET_RECEIVE_BUFFER_SIZE),
	}
}

func (s *udpSocket) GetLocalAddress() (netip.AddrPort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return netip.AddrPort{}, ErrNotOpen
	}
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort(), nil
}

func (s *udpSocket) MustGetLocalAddress() netip.AddrPort {
	addr, err := s.GetLocalAddress()
	assert.IsNil(err)
	return addr
}

func (s *udpSocket) Subscribe() chan *Packet {
	return s.packetObservable.Subscribe()
}

func (s *udpSocket) Unsubscribe(ch chan *Packet) {
	s.packetObservable.Unsubscribe(ch)
}

func (s *udpSocket) Open(addr netip.AddrPort) (netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assert.Assert(s.conn == nil, "UDP socket is already open. Call Close() before calling Open() again.")

	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return netip.AddrPort{}, err
	}

	s.conn = conn
	s.mcast = ipv4.NewPacketConn(conn)

	go s.readLoop(conn)

	return conn.LocalAddr().(*net.UDPAddr).AddrPort(), nil
}

func (s *udpSocket) JoinGroup(group netip.Addr, ifname string) error {
	if !group.Is4() || !group.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrNotMulticast, group)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotOpen
	}

	var ifi *net.Interface
	if ifname != "" {
		var err error
		ifi, err = net.InterfaceByName(ifname)
		if err != nil {
			return err
		}
		if err := s.mcast.SetMulticastInterface(ifi); err != nil {
			return err
		}
	}

	if err := s.mcast.JoinGroup(ifi, &net.UDPAddr{IP: net.IP(group.AsSlice())}); err != nil {
		return fmt.Errorf("join %s: %w", group, err)
	}
	if err := s.mcast.SetMulticastLoopback(true); err != nil {
		logger.Warnf("Failed to enable multicast loopback: %v", err)
	}

	s.joined = append(s.joined, group)
	logger.Infof("Joined multicast group %s", group)
	return nil
}

func (s *udpSocket) readLoop(conn *net.UDPConn) {
	for {
		buffer := make([]byte, common.UDP_BUFFER_SIZE_BYTES)
		n, addr, err := conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Socket is closed, exit the loop
				return
			}

			logger.Warnf("Failed to read from UDP socket: %v", err)
			continue
		}

		from := netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		s.packetObservable.NotifyObservers(&Packet{Addr: from, Data: buffer[:n]})
	}
}

func (s *udpSocket) SendTo(addr netip.AddrPort, data []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return ErrNotOpen
	}

	_, err := conn.WriteToUDPAddrPort(data, addr)
	return err
}

func (s *udpSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	for _, group := range s.joined {
		_ = s.mcast.LeaveGroup(nil, &net.UDPAddr{IP: net.IP(group.AsSlice())})
	}
	s.joined = nil

	err := s.conn.Close()
	s.conn = nil
	s.mcast = nil
	return err
}
