package ipsec

import (
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/khadas/scriptbridge/core/fault"
	"github.com/khadas/scriptbridge/core/withlock"
)

// linuxPlatform drives the kernel XFRM subsystem over netlink and raw
// sockets via the unix package.
type linuxPlatform struct {
	mu sync.Mutex
	// policies applied per socket fd, so remove-transform can undo them
	policies map[int][]*netlink.XfrmPolicy
}

func NewLinuxPlatform() Platform {
	return &linuxPlatform{
		policies: make(map[int][]*netlink.XfrmPolicy),
	}
}

type xfrmSPI struct {
	dst net.IP
	spi int
	// larval is the kernel-side reservation, nil when the caller picked
	// the SPI value itself
	larval *netlink.XfrmState
}

func (s *xfrmSPI) Value() int { return s.spi }

func (s *xfrmSPI) Close() error {
	if s.larval == nil {
		return nil
	}
	err := netlink.XfrmStateDel(s.larval)
	s.larval = nil
	return err
}

type xfrmTransform struct {
	state *netlink.XfrmState
}

func (t *xfrmTransform) DestAddr() net.IP { return t.state.Dst }
func (t *xfrmTransform) SPI() int         { return t.state.Spi }

func (t *xfrmTransform) Close() error {
	return netlink.XfrmStateDel(t.state)
}

type encapSocket struct {
	fd   int
	port int
}

func (s *encapSocket) Port() int { return s.port }

func (s *encapSocket) Close() error {
	return unix.Close(s.fd)
}

func (p *linuxPlatform) AllocateSPI(addr net.IP, requestedSPI int) (SPIHandle, error) {
	if requestedSPI != 0 {
		// the kernel SPI allocator picks from its own range; a
		// caller-chosen value is reserved locally and installed when the
		// transform's SA is added
		return &xfrmSPI{dst: addr, spi: requestedSPI}, nil
	}
	state := &netlink.XfrmState{
		Dst:   addr,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TRANSPORT,
	}
	out, err := netlink.XfrmStateAllocSpi(state)
	if err != nil {
		return nil, fmt.Errorf("XfrmStateAllocSpi: %w: %v", fault.ErrResourceUnavailable, err)
	}
	return &xfrmSPI{dst: addr, spi: out.Spi, larval: out}, nil
}

func (p *linuxPlatform) CreateTransportModeTransform(cfg TransformConfig, spi SPIHandle) (TransformHandle, error) {
	state := &netlink.XfrmState{
		Dst:   cfg.DestAddr,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TRANSPORT,
		Spi:   spi.Value(),
		Crypt: &netlink.XfrmStateAlgo{
			Name: cfg.EncryptionAlgo,
			Key:  cfg.EncryptionKey,
		},
		Auth: &netlink.XfrmStateAlgo{
			Name:        cfg.AuthAlgo,
			Key:         cfg.AuthKey,
			TruncateLen: cfg.AuthTruncBits,
		},
	}
	if err := netlink.XfrmStateAdd(state); err != nil {
		// the SPI reservation may have left a larval SA with the same
		// (dst, spi); promote it instead
		if uerr := netlink.XfrmStateUpdate(state); uerr != nil {
			return nil, fmt.Errorf("XfrmStateAdd: %w: %v", fault.ErrPlatformRejected, err)
		}
	}
	return &xfrmTransform{state: state}, nil
}

func hostNet(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

func sockaddrIP(sa unix.Sockaddr) (net.IP, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]), nil
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]), nil
	default:
		return nil, fmt.Errorf("unsupported socket address family: %w", fault.ErrEncoding)
	}
}

func (p *linuxPlatform) ApplyTransportModeTransform(fd int, direction int, transform TransformHandle) error {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fmt.Errorf("Getsockname(%d): %w: %v", fd, fault.ErrPlatformRejected, err)
	}
	local, err := sockaddrIP(sa)
	if err != nil {
		return err
	}
	remote := transform.DestAddr()

	tmpl := netlink.XfrmPolicyTmpl{
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TRANSPORT,
		Spi:   transform.SPI(),
	}
	pol := &netlink.XfrmPolicy{}
	switch direction {
	case DirectionOut:
		pol.Src = hostNet(local)
		pol.Dst = hostNet(remote)
		pol.Dir = netlink.XFRM_DIR_OUT
		tmpl.Src = local
		tmpl.Dst = remote
	case DirectionIn:
		pol.Src = hostNet(remote)
		pol.Dst = hostNet(local)
		pol.Dir = netlink.XFRM_DIR_IN
		tmpl.Src = remote
		tmpl.Dst = local
	default:
		return fmt.Errorf("direction %d: %w", direction, fault.ErrEncoding)
	}
	pol.Tmpls = []netlink.XfrmPolicyTmpl{tmpl}

	if err := netlink.XfrmPolicyAdd(pol); err != nil {
		return fmt.Errorf("XfrmPolicyAdd: %w: %v", fault.ErrPlatformRejected, err)
	}
	withlock.Do(&p.mu, func() {
		p.policies[fd] = append(p.policies[fd], pol)
	})
	return nil
}

func (p *linuxPlatform) RemoveTransportModeTransforms(fd int) error {
	var pols []*netlink.XfrmPolicy
	withlock.Do(&p.mu, func() {
		pols = p.policies[fd]
		delete(p.policies, fd)
	})
	var firstErr error
	for _, pol := range pols {
		if err := netlink.XfrmPolicyDel(pol); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("XfrmPolicyDel: %w: %v", fault.ErrPlatformRejected, err)
		}
	}
	return firstErr
}

func (p *linuxPlatform) OpenUDPEncapSocket(port int) (EncapSocketHandle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w: %v", fault.ErrResourceUnavailable, err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_UDP, unix.UDP_ENCAP, unix.UDP_ENCAP_ESPINUDP); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt(UDP_ENCAP): %w: %v", fault.ErrPlatformRejected, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind(%d): %w: %v", port, fault.ErrPlatformRejected, err)
	}
	boundPort := port
	if sa, err := unix.Getsockname(fd); err == nil {
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			boundPort = in4.Port
		}
	}
	return &encapSocket{fd: fd, port: boundPort}, nil
}

func bindSockaddr(ip net.IP, port int) (unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip16)
		return sa, nil
	}
	return nil, fmt.Errorf("address %s: %w", ip, fault.ErrEncoding)
}

func (p *linuxPlatform) OpenSocket(domain, typ int, addr net.IP, port int) (int, error) {
	fd, err := unix.Socket(domain, typ, 0)
	if err != nil {
		return -1, fmt.Errorf("socket(%d, %d): %w: %v", domain, typ, fault.ErrResourceUnavailable, err)
	}
	sa, err := bindSockaddr(addr, port)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind(%s:%d): %w: %v", addr, port, fault.ErrPlatformRejected, err)
	}
	return fd, nil
}

func (p *linuxPlatform) CloseSocket(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close(%d): %w: %v", fd, fault.ErrPlatformRejected, err)
	}
	return nil
}

func (p *linuxPlatform) SendTo(fd int, data []byte, addr net.IP, port int) error {
	sa, err := bindSockaddr(addr, port)
	if err != nil {
		return err
	}
	if err := unix.Sendto(fd, data, 0, sa); err != nil {
		return fmt.Errorf("sendto(%d): %w: %v", fd, fault.ErrPlatformRejected, err)
	}
	return nil
}

func (p *linuxPlatform) Recv(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("read(%d): %w: %v", fd, fault.ErrPlatformRejected, err)
	}
	return n, nil
}
