package hid

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/khadas/scriptbridge/core/fault"
	"github.com/khadas/scriptbridge/rpcserver"
)

// Facade translates the bluetoothHid* RPC methods into profile proxy
// calls. Every operation fails fast with the documented sentinel while the
// proxy is Unready; callers that want to await startup use WaitReady.
type Facade struct {
	proxy ProfileProxy

	// priorities is a host-side setting keyed by lowercase device
	// address; the profile wire protocol has no priority command.
	mu         sync.Mutex
	priorities map[string]int
}

func NewFacade(proxy ProfileProxy) *Facade {
	return &Facade{
		proxy:      proxy,
		priorities: make(map[string]int),
	}
}

func (f *Facade) Name() string { return "hid" }

func (f *Facade) Shutdown() {
	f.proxy.Close()
}

func (f *Facade) Methods() map[string]rpcserver.Handler {
	return map[string]rpcserver.Handler{
		"bluetoothHidIsReady":             f.isReady,
		"bluetoothHidConnect":             f.connect,
		"bluetoothHidDisconnect":          f.disconnect,
		"bluetoothHidGetConnectedDevices": f.getConnectedDevices,
		"bluetoothHidGetConnectionStatus": f.getConnectionStatus,
		"bluetoothHidSetReport":           f.setReport,
		"bluetoothHidGetReport":           f.getReport,
		"bluetoothHidSendData":            f.sendData,
		"bluetoothHidVirtualUnplug":       f.virtualUnplug,
		"bluetoothHidSetPriority":         f.setPriority,
		"bluetoothHidGetPriority":         f.getPriority,
		"bluetoothHidSetProtocolMode":     f.setProtocolMode,
		"bluetoothHidGetProtocolMode":     f.getProtocolMode,
		"bluetoothHidSetIdleTime":         f.setIdleTime,
		"bluetoothHidGetIdleTime":         f.getIdleTime,
	}
}

// resolveDevice matches a name-or-address identifier against a device set.
func resolveDevice(devices []DeviceInfo, deviceID string) (DeviceInfo, error) {
	for _, d := range devices {
		if strings.EqualFold(d.Address, deviceID) || d.Name == deviceID {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("device %q: %w", deviceID, fault.ErrNotFound)
}

// connectedDevice resolves deviceID against the currently connected set,
// failing fast when the proxy is Unready.
func (f *Facade) connectedDevice(deviceID string) (DeviceInfo, error) {
	if !f.proxy.Ready() {
		return DeviceInfo{}, fault.ErrNotReady
	}
	devices, err := f.proxy.ConnectedDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	return resolveDevice(devices, deviceID)
}

func (f *Facade) isReady(p rpcserver.Params) (any, error) {
	return f.proxy.Ready(), nil
}

func (f *Facade) connect(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	if !f.proxy.Ready() {
		slog.Error("BluetoothHid: profile proxy not ready", "op", "connect")
		return false, nil
	}
	devices, err := f.proxy.KnownDevices()
	if err != nil {
		slog.Error("BluetoothHid: failed to list known devices", "error", err)
		return false, nil
	}
	device, err := resolveDevice(devices, deviceID)
	if err != nil {
		slog.Error("BluetoothHid: unknown device", "device", deviceID, "error", err)
		return false, nil
	}
	slog.Debug("BluetoothHid: connecting to device", "name", device.Name, "address", device.Address)
	if err := f.proxy.Connect(device.Address); err != nil {
		slog.Error("BluetoothHid: connect failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) disconnect(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: disconnect failed", "device", deviceID, "error", err)
		return false, nil
	}
	if err := f.proxy.Disconnect(device.Address); err != nil {
		slog.Error("BluetoothHid: disconnect failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) getConnectedDevices(p rpcserver.Params) (any, error) {
	if !f.proxy.Ready() {
		slog.Error("BluetoothHid: profile proxy not ready", "op", "getConnectedDevices")
		return nil, nil
	}
	devices, err := f.proxy.ConnectedDevices()
	if err != nil {
		slog.Error("BluetoothHid: failed to list connected devices", "error", err)
		return nil, nil
	}
	return devices, nil
}

func (f *Facade) getConnectionStatus(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Debug("BluetoothHid: connection status for unknown device", "device", deviceID, "error", err)
		return StateDisconnected, nil
	}
	state, err := f.proxy.ConnectionState(device.Address)
	if err != nil {
		slog.Error("BluetoothHid: failed to get connection state", "address", device.Address, "error", err)
		return StateDisconnected, nil
	}
	return state, nil
}

func (f *Facade) setReport(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	reportType, err := p.IntDefault(1, ReportTypeInput)
	if err != nil {
		return nil, err
	}
	report, err := p.String(2)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: set report failed", "device", deviceID, "error", err)
		return false, nil
	}
	slog.Debug("BluetoothHid: set report", "address", device.Address, "type", reportType)
	if err := f.proxy.SetReport(device.Address, byte(reportType), []byte(report)); err != nil {
		slog.Error("BluetoothHid: set report failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) getReport(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	reportType, err := p.IntDefault(1, ReportTypeInput)
	if err != nil {
		return nil, err
	}
	reportID, err := p.Int(2)
	if err != nil {
		return nil, err
	}
	buffSize, err := p.Int(3)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: get report failed", "device", deviceID, "error", err)
		return false, nil
	}
	slog.Debug("BluetoothHid: get report", "address", device.Address, "type", reportType, "reportId", reportID)
	if _, err := f.proxy.GetReport(device.Address, byte(reportType), byte(reportID), buffSize); err != nil {
		slog.Error("BluetoothHid: get report failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) sendData(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	report, err := p.String(1)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: send data failed", "device", deviceID, "error", err)
		return false, nil
	}
	if err := f.proxy.SendData(device.Address, []byte(report)); err != nil {
		slog.Error("BluetoothHid: send data failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) virtualUnplug(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: virtual unplug failed", "device", deviceID, "error", err)
		return false, nil
	}
	if err := f.proxy.VirtualUnplug(device.Address); err != nil {
		slog.Error("BluetoothHid: virtual unplug failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) setPriority(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	priority, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: set priority failed", "device", deviceID, "error", err)
		return false, nil
	}
	f.mu.Lock()
	f.priorities[strings.ToLower(device.Address)] = priority
	f.mu.Unlock()
	return true, nil
}

func (f *Facade) getPriority(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: get priority failed", "device", deviceID, "error", err)
		return PriorityUndefined, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if priority, ok := f.priorities[strings.ToLower(device.Address)]; ok {
		return priority, nil
	}
	return PriorityUndefined, nil
}

func (f *Facade) setProtocolMode(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	mode, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: set protocol mode failed", "device", deviceID, "error", err)
		return false, nil
	}
	if err := f.proxy.SetProtocolMode(device.Address, mode); err != nil {
		slog.Error("BluetoothHid: set protocol mode failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) getProtocolMode(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: get protocol mode failed", "device", deviceID, "error", err)
		return -1, nil
	}
	mode, err := f.proxy.GetProtocolMode(device.Address)
	if err != nil {
		slog.Error("BluetoothHid: get protocol mode failed", "address", device.Address, "error", err)
		return -1, nil
	}
	return mode, nil
}

func (f *Facade) setIdleTime(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	idleTime, err := p.Int(1)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: set idle time failed", "device", deviceID, "error", err)
		return false, nil
	}
	if err := f.proxy.SetIdleTime(device.Address, byte(idleTime)); err != nil {
		slog.Error("BluetoothHid: set idle time failed", "address", device.Address, "error", err)
		return false, nil
	}
	return true, nil
}

func (f *Facade) getIdleTime(p rpcserver.Params) (any, error) {
	deviceID, err := p.String(0)
	if err != nil {
		return nil, err
	}
	device, err := f.connectedDevice(deviceID)
	if err != nil {
		slog.Error("BluetoothHid: get idle time failed", "device", deviceID, "error", err)
		return -1, nil
	}
	idle, err := f.proxy.GetIdleTime(device.Address)
	if err != nil {
		slog.Error("BluetoothHid: get idle time failed", "address", device.Address, "error", err)
		return -1, nil
	}
	return idle, nil
}
