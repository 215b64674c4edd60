// Package wifirtt exposes Wi-Fi RTT (round-trip-time ranging) over RPC.
package wifirtt

// Per-result status values, matching the platform codes the scripting
// clients check.
const (
	StatusSuccess = 0
	StatusFail    = 1
)

// Whole-request failure codes delivered with a ranging-failure event.
const (
	FailCodeGeneric         = 1
	FailCodeRttNotAvailable = 2
)

type TargetKind int

const (
	TargetAccessPoint TargetKind = iota
	TargetAwareMAC
	TargetAwarePeerID
)

// Target is one peer to range against.
type Target struct {
	Kind TargetKind

	// MAC is the BSSID or Aware peer MAC, raw bytes. Nil for peer-id
	// targets.
	MAC []byte

	// PeerID identifies an Aware peer when Kind is TargetAwarePeerID.
	PeerID int

	// Frequency and Is80211mcResponder are access-point scan metadata,
	// passed through to the ranging engine.
	Frequency          int
	Is80211mcResponder bool
}

type Request struct {
	Targets []Target
}

// Result is one per-target ranging measurement. Distance fields are only
// valid when Status is StatusSuccess.
type Result struct {
	Status           int
	DistanceMm       int
	DistanceStdDevMm int
	RSSI             int
	TimestampUs      int64
	MAC              []byte
	PeerID           *int
}

// Callback receives the single asynchronous outcome of one ranging request:
// either a failure or a result list, exactly once.
type Callback interface {
	OnRangingFailure(status int)
	OnRangingResults(results []Result)
}

// Platform is the host ranging engine behind the facade.
type Platform interface {
	RTTSupported() bool
	StartRanging(req Request, cb Callback) error
}
