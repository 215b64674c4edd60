// Package hid exposes Bluetooth HID profile control over RPC.
package hid

import "time"

// Connection states, matching the integer codes the scripting clients
// expect.
const (
	StateDisconnected  = 0
	StateConnecting    = 1
	StateConnected     = 2
	StateDisconnecting = 3
)

// HID report types.
const (
	ReportTypeInput   = 1
	ReportTypeOutput  = 2
	ReportTypeFeature = 3
)

// Protocol modes.
const (
	ProtocolReportMode = 0
	ProtocolBootMode   = 1
)

// Profile priority values. Priority is a host-side setting, not a wire
// command; PriorityUndefined is the get sentinel before any set.
const (
	PriorityOff         = 0
	PriorityOn          = 100
	PriorityAutoConnect = 1000
	PriorityUndefined   = -1
)

// DeviceInfo describes one HID-capable device the proxy knows about.
type DeviceInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ProfileProxy is the shared connection to the host's input-device
// profile service. It has two states, Unready and Ready, toggled by the
// host's own lifecycle; operations invoked while Unready fail fast.
type ProfileProxy interface {
	Ready() bool
	// WaitReady blocks until the proxy is Ready or the timeout elapses,
	// returning a NotReady error on timeout.
	WaitReady(timeout time.Duration) error

	// KnownDevices is the discovered/paired HID device set, used to
	// resolve connect targets.
	KnownDevices() ([]DeviceInfo, error)
	ConnectedDevices() ([]DeviceInfo, error)
	ConnectionState(addr string) (int, error)

	Connect(addr string) error
	Disconnect(addr string) error
	// VirtualUnplug sends the virtual cable unplug, dropping the bond.
	VirtualUnplug(addr string) error

	SetReport(addr string, reportType byte, report []byte) error
	GetReport(addr string, reportType, reportID byte, bufSize int) ([]byte, error)
	SendData(addr string, data []byte) error

	SetProtocolMode(addr string, mode int) error
	GetProtocolMode(addr string) (int, error)
	SetIdleTime(addr string, idleTime byte) error
	GetIdleTime(addr string) (int, error)

	Close()
}
