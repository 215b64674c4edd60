package hid

import (
	"time"

	"github.com/khadas/scriptbridge/core/fault"
)

// unavailableProxy stands in when BlueZ cannot be reached at startup. It is
// permanently Unready, so every facade operation takes the fail-fast path.
type unavailableProxy struct{}

func NewUnavailableProxy() ProfileProxy {
	return unavailableProxy{}
}

func (unavailableProxy) Ready() bool { return false }

func (unavailableProxy) WaitReady(timeout time.Duration) error {
	return fault.ErrNotReady
}

func (unavailableProxy) KnownDevices() ([]DeviceInfo, error)     { return nil, fault.ErrNotReady }
func (unavailableProxy) ConnectedDevices() ([]DeviceInfo, error) { return nil, fault.ErrNotReady }
func (unavailableProxy) ConnectionState(string) (int, error) {
	return StateDisconnected, fault.ErrNotReady
}

func (unavailableProxy) Connect(string) error       { return fault.ErrNotReady }
func (unavailableProxy) Disconnect(string) error    { return fault.ErrNotReady }
func (unavailableProxy) VirtualUnplug(string) error { return fault.ErrNotReady }

func (unavailableProxy) SetReport(string, byte, []byte) error { return fault.ErrNotReady }
func (unavailableProxy) GetReport(string, byte, byte, int) ([]byte, error) {
	return nil, fault.ErrNotReady
}
func (unavailableProxy) SendData(string, []byte) error { return fault.ErrNotReady }

func (unavailableProxy) SetProtocolMode(string, int) error { return fault.ErrNotReady }
func (unavailableProxy) GetProtocolMode(string) (int, error) {
	return ProtocolReportMode, fault.ErrNotReady
}
func (unavailableProxy) SetIdleTime(string, byte) error { return fault.ErrNotReady }
func (unavailableProxy) GetIdleTime(string) (int, error) {
	return 0, fault.ErrNotReady
}

func (unavailableProxy) Close() {}
