package ipsec

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/khadas/scriptbridge/core/fault"
	"github.com/khadas/scriptbridge/core/registry"
	"github.com/khadas/scriptbridge/rpcserver"
)

const recvBufferSize = 2048

// Facade translates the ipSec* RPC methods into platform calls. Failures
// collapse to the documented sentinels (null / false / -1 / 0) and are only
// distinguishable in the logs.
type Facade struct {
	platform     Platform
	spis         *registry.Registry[SPIHandle]
	transforms   *registry.Registry[TransformHandle]
	encapSockets *registry.Registry[EncapSocketHandle]
}

func NewFacade(platform Platform) *Facade {
	return &Facade{
		platform:     platform,
		spis:         registry.New[SPIHandle]("SPI"),
		transforms:   registry.New[TransformHandle]("TRANSFORM"),
		encapSockets: registry.New[EncapSocketHandle]("UDPENCAPSOCK"),
	}
}

func (f *Facade) Name() string { return "ipsec" }

func (f *Facade) Shutdown() {
	for _, h := range f.transforms.Drain() {
		if err := h.Close(); err != nil {
			slog.Warn("IpSec: failed to destroy transform at shutdown", "error", err)
		}
	}
	for _, h := range f.spis.Drain() {
		if err := h.Close(); err != nil {
			slog.Warn("IpSec: failed to release SPI at shutdown", "error", err)
		}
	}
	for _, h := range f.encapSockets.Drain() {
		if err := h.Close(); err != nil {
			slog.Warn("IpSec: failed to close udp encap socket at shutdown", "error", err)
		}
	}
}

func (f *Facade) Methods() map[string]rpcserver.Handler {
	return map[string]rpcserver.Handler{
		"ipSecAllocateSecurityParameterIndex": f.allocateSPI,
		"ipSecReleaseSecurityParameterIndex":  f.releaseSPI,
		"ipSecGetSecurityParameterIndex":      f.getSPI,
		"ipSecCreateTransportModeTransform":   f.createTransform,
		"ipSecDestroyTransportModeTransform":  f.destroyTransform,
		"ipSecGetTransformStatus":             f.getTransformStatus,
		"ipSecApplyTransformToSocket":         f.applyTransform,
		"ipSecRemoveTransformToSocket":        f.removeTransform,
		"ipSecOpenUdpEncapsulationSocket":     f.openEncapSocket,
		"ipSecCloseUdpEncapsulationSocket":    f.closeEncapSocket,
		"ipSecOpenSocket":                     f.openSocket,
		"ipSecCloseSocket":                    f.closeSocket,
		"sendDataOverSocket":                  f.sendData,
		"recvDataOverSocket":                  f.recvData,
	}
}

func parseAddr(addr string) (net.IP, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("address %q: %w", addr, fault.ErrEncoding)
	}
	return ip, nil
}

func (f *Facade) allocateSPI(p rpcserver.Params) (any, error) {
	addr, err := p.String(0)
	if err != nil {
		return nil, err
	}
	requested, err := p.OptionalInt(1)
	if err != nil {
		return nil, err
	}

	ip, err := parseAddr(addr)
	if err != nil {
		slog.Error("IpSec: reserve SPI failure", "addr", addr, "error", err)
		return nil, nil
	}
	want := 0
	if requested != nil {
		want = *requested
	}
	spi, err := f.platform.AllocateSPI(ip, want)
	if err != nil {
		slog.Error("IpSec: reserve SPI failure", "addr", addr, "error", err)
		return nil, nil
	}
	return f.spis.Add(spi), nil
}

func (f *Facade) getSPI(p rpcserver.Params) (any, error) {
	id, err := p.String(0)
	if err != nil {
		return nil, err
	}
	spi, ok := f.spis.Get(id)
	if !ok {
		slog.Debug("IpSec: SPI does not exist for the requested id", "id", id)
		return 0, nil
	}
	return spi.Value(), nil
}

func (f *Facade) releaseSPI(p rpcserver.Params) (any, error) {
	id, err := p.String(0)
	if err != nil {
		return nil, err
	}
	spi, ok := f.spis.Remove(id)
	if !ok {
		slog.Debug("IpSec: SPI does not exist for the requested id", "id", id)
		return nil, nil
	}
	if err := spi.Close(); err != nil {
		slog.Error("IpSec: failed to release SPI", "id", id, "error", err)
	}
	return nil, nil
}

func (f *Facade) createTransform(p rpcserver.Params) (any, error) {
	encAlgo, err := p.String(0)
	if err != nil {
		return nil, err
	}
	cryptKey, err := p.String(1)
	if err != nil {
		return nil, err
	}
	authAlgo, err := p.String(2)
	if err != nil {
		return nil, err
	}
	authKey, err := p.String(3)
	if err != nil {
		return nil, err
	}
	truncBits, err := p.Int(4)
	if err != nil {
		return nil, err
	}
	spiID, err := p.String(5)
	if err != nil {
		return nil, err
	}
	addr, err := p.String(6)
	if err != nil {
		return nil, err
	}

	spi, ok := f.spis.Get(spiID)
	if !ok {
		slog.Error("IpSec: SPI does not exist for the requested spiId", "spiId", spiID)
		return nil, nil
	}
	ip, err := parseAddr(addr)
	if err != nil {
		slog.Error("IpSec: cannot create transport mode transform", "addr", addr, "error", err)
		return nil, nil
	}
	cfg := TransformConfig{
		EncryptionAlgo: encAlgo,
		EncryptionKey:  []byte(cryptKey),
		AuthAlgo:       authAlgo,
		AuthKey:        []byte(authKey),
		AuthTruncBits:  truncBits,
		DestAddr:       ip,
	}
	transform, err := f.platform.CreateTransportModeTransform(cfg, spi)
	if err != nil {
		slog.Error("IpSec: cannot create transport mode transform", "error", err)
		return nil, nil
	}
	return f.transforms.Add(transform), nil
}

func (f *Facade) getTransformStatus(p rpcserver.Params) (any, error) {
	id, err := p.String(0)
	if err != nil {
		return nil, err
	}
	if _, ok := f.transforms.Get(id); !ok {
		slog.Error("IpSec: transform does not exist for the requested id", "id", id)
		return false, nil
	}
	return true, nil
}

func (f *Facade) destroyTransform(p rpcserver.Params) (any, error) {
	id, err := p.String(0)
	if err != nil {
		return nil, err
	}
	transform, ok := f.transforms.Remove(id)
	if !ok {
		slog.Error("IpSec: transform does not exist for the requested id", "id", id)
		return nil, nil
	}
	if err := transform.Close(); err != nil {
		slog.Error("IpSec: failed to destroy transform", "id", id, "error", err)
	}
	return nil, nil
}

func (f *Facade) applyTransform(p rpcserver.Params) (any, error) {
	fd, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	direction, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	id, err := p.String(2)
	if err != nil {
		return nil, err
	}

	transform, ok := f.transforms.Get(id)
	if !ok {
		slog.Error("IpSec: transform does not exist for the requested id", "id", id)
		return false, nil
	}
	if err := f.platform.ApplyTransportModeTransform(fd, direction, transform); err != nil {
		slog.Error("IpSec: cannot apply transform to socket", "fd", fd, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) removeTransform(p rpcserver.Params) (any, error) {
	fd, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	if err := f.platform.RemoveTransportModeTransforms(fd); err != nil {
		slog.Error("IpSec: failed to remove transform", "fd", fd, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) openEncapSocket(p rpcserver.Params) (any, error) {
	port, err := p.OptionalInt(0)
	if err != nil {
		return nil, err
	}
	want := 0
	if port != nil {
		want = *port
	}
	sock, err := f.platform.OpenUDPEncapSocket(want)
	if err != nil {
		slog.Error("IpSec: failed to open udp encap socket", "port", want, "error", err)
		return nil, nil
	}
	return f.encapSockets.Add(sock), nil
}

func (f *Facade) closeEncapSocket(p rpcserver.Params) (any, error) {
	id, err := p.String(0)
	if err != nil {
		return nil, err
	}
	sock, ok := f.encapSockets.Remove(id)
	if !ok {
		slog.Error("IpSec: udp encap socket does not exist for the requested id", "id", id)
		return false, nil
	}
	if err := sock.Close(); err != nil {
		slog.Error("IpSec: failed to close udp encap socket", "id", id, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) openSocket(p rpcserver.Params) (any, error) {
	domain, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	typ, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	addr, err := p.String(2)
	if err != nil {
		return nil, err
	}
	port, err := p.Int(3)
	if err != nil {
		return nil, err
	}

	ip, err := parseAddr(addr)
	if err != nil {
		slog.Error("IpSec: failed to open socket", "addr", addr, "error", err)
		return -1, nil
	}
	fd, err := f.platform.OpenSocket(domain, typ, ip, port)
	if err != nil {
		slog.Error("IpSec: failed to open socket", "addr", addr, "port", port, "error", err)
		return -1, nil
	}
	return fd, nil
}

func (f *Facade) closeSocket(p rpcserver.Params) (any, error) {
	fd, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	if err := f.platform.CloseSocket(fd); err != nil {
		slog.Error("IpSec: failed to close socket", "fd", fd, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) sendData(p rpcserver.Params) (any, error) {
	remoteAddr, err := p.String(0)
	if err != nil {
		return nil, err
	}
	remotePort, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	message, err := p.String(2)
	if err != nil {
		return nil, err
	}
	fd, err := p.Int(3)
	if err != nil {
		return nil, err
	}

	ip, err := parseAddr(remoteAddr)
	if err != nil {
		slog.Error("IpSec: sending data over socket failed", "addr", remoteAddr, "error", err)
		return false, nil
	}
	data := []byte(message)
	if err := f.platform.SendTo(fd, data, ip, remotePort); err != nil {
		slog.Error("IpSec: sending data over socket failed", "fd", fd, "error", err)
		return false, nil
	}
	slog.Debug("IpSec: sent data", "fd", fd, "bytes", len(data))
	return true, nil
}

func (f *Facade) recvData(p rpcserver.Params) (any, error) {
	fd, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, recvBufferSize)
	n, err := f.platform.Recv(fd, buf)
	if err != nil {
		slog.Error("IpSec: receiving data over socket failed", "fd", fd, "error", err)
		return nil, nil
	}
	return strings.ToValidUTF8(string(buf[:n]), ""), nil
}
