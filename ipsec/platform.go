// Package ipsec exposes IPsec transform and socket management over RPC.
package ipsec

import "net"

// Direction codes for applying a transform to a socket, matching the wire
// contract the scripting clients use.
const (
	DirectionIn  = 0
	DirectionOut = 1
)

// SPIHandle is a reserved security parameter index.
type SPIHandle interface {
	// Value returns the 32-bit SPI.
	Value() int
	Close() error
}

// TransformHandle is a configured transport-mode security association.
type TransformHandle interface {
	// DestAddr is the peer the transform was built against.
	DestAddr() net.IP
	// SPI is the security parameter index the transform is bound to.
	SPI() int
	Close() error
}

// EncapSocketHandle is an open UDP encapsulation socket.
type EncapSocketHandle interface {
	Port() int
	Close() error
}

// TransformConfig carries the parameters for building a transport-mode
// transform. Key material arrives as the raw bytes of the RPC strings.
type TransformConfig struct {
	EncryptionAlgo string
	EncryptionKey  []byte
	AuthAlgo       string
	AuthKey        []byte
	AuthTruncBits  int
	DestAddr       net.IP
}

// Platform is the host IPsec and socket surface the facade drives. The
// Linux implementation talks XFRM netlink and raw sockets; tests substitute
// a fake.
type Platform interface {
	AllocateSPI(addr net.IP, requestedSPI int) (SPIHandle, error)
	CreateTransportModeTransform(cfg TransformConfig, spi SPIHandle) (TransformHandle, error)
	ApplyTransportModeTransform(fd int, direction int, transform TransformHandle) error
	RemoveTransportModeTransforms(fd int) error
	OpenUDPEncapSocket(port int) (EncapSocketHandle, error)

	OpenSocket(domain, typ int, addr net.IP, port int) (int, error)
	CloseSocket(fd int) error
	SendTo(fd int, data []byte, addr net.IP, port int) error
	Recv(fd int, buf []byte) (int, error)
}
