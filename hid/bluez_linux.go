package hid

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"

	"github.com/khadas/scriptbridge/core/fault"
	"github.com/khadas/scriptbridge/events"
)

const (
	bluezService    = "org.bluez"
	deviceIface     = "org.bluez.Device1"
	adapterIface    = "org.bluez.Adapter1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"

	// HID profile service class UUID.
	hidUUID = "00001124-0000-1000-8000-00805f9b34fb"
)

const (
	eventConnectionStateChanged = "BluetoothHidConnectionStateChanged"
	eventProtocolModeChanged    = "BluetoothHidProtocolModeChanged"
	eventIdleTimeChanged        = "BluetoothHidIdleTimeChanged"
)

// BluezProxy drives the HID profile through the BlueZ system-bus API.
// Readiness tracks the adapter's Powered property. Protocol mode and idle
// time have no BlueZ surface; they are per-device settings the proxy
// records and announces, matching the host-service behavior scripts expect.
type BluezProxy struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	bus         *events.Bus
	readiness   *Readiness
	hidrawDir   string

	sigCh chan *dbus.Signal
	quit  chan struct{}

	mu        sync.Mutex
	modes     map[string]int
	idleTimes map[string]int
	closed    bool
}

func NewBluezProxy(adapter, hidrawDir string, bus *events.Bus) (*BluezProxy, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	p := &BluezProxy{
		conn:        conn,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		bus:         bus,
		readiness:   NewReadiness(),
		hidrawDir:   hidrawDir,
		sigCh:       make(chan *dbus.Signal, 16),
		quit:        make(chan struct{}),
		modes:       make(map[string]int),
		idleTimes:   make(map[string]int),
	}

	p.readiness.Set(p.adapterPowered())

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("AddMatchSignal: %w", err)
	}
	conn.Signal(p.sigCh)
	go p.watch()

	return p, nil
}

func (p *BluezProxy) Ready() bool { return p.readiness.Ready() }

func (p *BluezProxy) WaitReady(timeout time.Duration) error {
	return p.readiness.Wait(timeout)
}

func (p *BluezProxy) adapterPowered() bool {
	obj := p.conn.Object(bluezService, p.adapterPath)
	variant, err := obj.GetProperty(adapterIface + ".Powered")
	if err != nil {
		slog.Warn("BluetoothHid: failed to read adapter Powered", "adapter", p.adapterPath, "error", err)
		return false
	}
	powered, _ := variant.Value().(bool)
	return powered
}

// watch relays PropertiesChanged transitions as informational events. It
// never touches facade state.
func (p *BluezProxy) watch() {
	for {
		select {
		case <-p.quit:
			return
		case sig, ok := <-p.sigCh:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *BluezProxy) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	if changed == nil {
		return
	}
	switch iface {
	case adapterIface:
		if sig.Path != p.adapterPath {
			return
		}
		if v, ok := changed["Powered"]; ok {
			powered, _ := v.Value().(bool)
			slog.Info("BluetoothHid: adapter power changed", "adapter", p.adapterPath, "powered", powered)
			p.readiness.Set(powered)
		}
	case deviceIface:
		if v, ok := changed["Connected"]; ok {
			connected, _ := v.Value().(bool)
			state := StateDisconnected
			if connected {
				state = StateConnected
			}
			addr := addressFromPath(sig.Path)
			slog.Info("BluetoothHid: device connection changed", "address", addr, "connected", connected)
			p.bus.Post(eventConnectionStateChanged, map[string]any{
				"address": addr,
				"state":   state,
			})
		}
	}
}

// devicePath maps a MAC address to its BlueZ object path under the adapter.
func (p *BluezProxy) devicePath(addr string) dbus.ObjectPath {
	frag := strings.ToUpper(strings.ReplaceAll(addr, ":", "_"))
	return dbus.ObjectPath(string(p.adapterPath) + "/dev_" + frag)
}

func addressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

func (p *BluezProxy) managedDevices(connectedOnly bool) ([]DeviceInfo, error) {
	obj := p.conn.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode GetManagedObjects: %w", err)
	}

	var out []DeviceInfo
	for path, ifaces := range objs {
		if !strings.HasPrefix(string(path), string(p.adapterPath)+"/") {
			continue
		}
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		uuids, _ := props["UUIDs"].Value().([]string)
		if !containsUUID(uuids, hidUUID) {
			continue
		}
		if connectedOnly {
			connected, _ := props["Connected"].Value().(bool)
			if !connected {
				continue
			}
		}
		var name, addr string
		if v, ok := props["Name"]; ok {
			name, _ = v.Value().(string)
		}
		if v, ok := props["Address"]; ok {
			addr, _ = v.Value().(string)
		}
		if addr == "" {
			addr = addressFromPath(path)
		}
		out = append(out, DeviceInfo{Name: name, Address: addr})
	}
	return out, nil
}

func containsUUID(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func (p *BluezProxy) KnownDevices() ([]DeviceInfo, error) {
	return p.managedDevices(false)
}

func (p *BluezProxy) ConnectedDevices() ([]DeviceInfo, error) {
	return p.managedDevices(true)
}

func (p *BluezProxy) ConnectionState(addr string) (int, error) {
	obj := p.conn.Object(bluezService, p.devicePath(addr))
	variant, err := obj.GetProperty(deviceIface + ".Connected")
	if err != nil {
		return StateDisconnected, fmt.Errorf("device %s: %w: %v", addr, fault.ErrNotFound, err)
	}
	connected, _ := variant.Value().(bool)
	if connected {
		return StateConnected, nil
	}
	return StateDisconnected, nil
}

func (p *BluezProxy) Connect(addr string) error {
	obj := p.conn.Object(bluezService, p.devicePath(addr))
	if call := obj.Call(deviceIface+".ConnectProfile", 0, hidUUID); call.Err != nil {
		return fmt.Errorf("ConnectProfile %s: %w: %v", addr, fault.ErrPlatformRejected, call.Err)
	}
	return nil
}

func (p *BluezProxy) Disconnect(addr string) error {
	obj := p.conn.Object(bluezService, p.devicePath(addr))
	if call := obj.Call(deviceIface+".DisconnectProfile", 0, hidUUID); call.Err != nil {
		return fmt.Errorf("DisconnectProfile %s: %w: %v", addr, fault.ErrPlatformRejected, call.Err)
	}
	return nil
}

// VirtualUnplug removes the device from the adapter, which drops the bond.
// That is the virtual cable unplug semantic for the HID profile.
func (p *BluezProxy) VirtualUnplug(addr string) error {
	obj := p.conn.Object(bluezService, p.adapterPath)
	if call := obj.Call(adapterIface+".RemoveDevice", 0, p.devicePath(addr)); call.Err != nil {
		return fmt.Errorf("RemoveDevice %s: %w: %v", addr, fault.ErrPlatformRejected, call.Err)
	}
	return nil
}

func (p *BluezProxy) SetReport(addr string, reportType byte, report []byte) error {
	node, err := hidrawNodeForAddress(p.hidrawDir, addr)
	if err != nil {
		return err
	}
	if reportType == ReportTypeFeature {
		return hidrawSetFeature(node, report)
	}
	return hidrawWrite(node, report)
}

func (p *BluezProxy) GetReport(addr string, reportType, reportID byte, bufSize int) ([]byte, error) {
	node, err := hidrawNodeForAddress(p.hidrawDir, addr)
	if err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	return hidrawGetFeature(node, reportID, bufSize)
}

func (p *BluezProxy) SendData(addr string, data []byte) error {
	node, err := hidrawNodeForAddress(p.hidrawDir, addr)
	if err != nil {
		return err
	}
	return hidrawWrite(node, data)
}

func (p *BluezProxy) SetProtocolMode(addr string, mode int) error {
	if mode != ProtocolReportMode && mode != ProtocolBootMode {
		return fmt.Errorf("protocol mode %d: %w", mode, fault.ErrPlatformRejected)
	}
	key := strings.ToLower(addr)
	p.mu.Lock()
	p.modes[key] = mode
	p.mu.Unlock()
	p.bus.Post(eventProtocolModeChanged, map[string]any{
		"address":      addr,
		"protocolMode": mode,
	})
	return nil
}

func (p *BluezProxy) GetProtocolMode(addr string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode, ok := p.modes[strings.ToLower(addr)]; ok {
		return mode, nil
	}
	return ProtocolReportMode, nil
}

func (p *BluezProxy) SetIdleTime(addr string, idleTime byte) error {
	key := strings.ToLower(addr)
	p.mu.Lock()
	p.idleTimes[key] = int(idleTime)
	p.mu.Unlock()
	p.bus.Post(eventIdleTimeChanged, map[string]any{
		"address":  addr,
		"idleTime": int(idleTime),
	})
	return nil
}

func (p *BluezProxy) GetIdleTime(addr string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idle, ok := p.idleTimes[strings.ToLower(addr)]; ok {
		return idle, nil
	}
	return 0, nil
}

func (p *BluezProxy) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	_ = p.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	p.conn.RemoveSignal(p.sigCh)
	p.conn.Close()
}
