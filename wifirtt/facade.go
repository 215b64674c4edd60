package wifirtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/khadas/scriptbridge/core/address"
	"github.com/khadas/scriptbridge/core/fault"
	"github.com/khadas/scriptbridge/events"
	"github.com/khadas/scriptbridge/rpcserver"
)

const (
	eventRangingFailure = "WifiRttRangingFailure_%d"
	eventRangingResults = "WifiRttRangingResults_%d"
)

// Facade translates the wifiRtt* RPC methods into ranging requests and
// relays the asynchronous outcomes as events tagged with the callback id.
type Facade struct {
	bus *events.Bus

	// mu guards the platform handle, the id counter and the pending set.
	mu             sync.Mutex
	platform       Platform
	nextCallbackID int
	pending        map[int]struct{}
}

func NewFacade(platform Platform, bus *events.Bus) *Facade {
	return &Facade{
		bus:            bus,
		platform:       platform,
		nextCallbackID: 1,
		pending:        make(map[int]struct{}),
	}
}

func (f *Facade) Name() string { return "wifirtt" }

func (f *Facade) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	// in-flight requests keep their records; the platform may still call
	// back while the process drains
	f.platform = nil
}

func (f *Facade) Methods() map[string]rpcserver.Handler {
	return map[string]rpcserver.Handler{
		"doesDeviceSupportWifiRttFeature":   f.rttSupported,
		"wifiRttStartRangingToAccessPoints": f.startRangingToAccessPoints,
		"wifiRttStartRangingToAwarePeerMac": f.startRangingToAwarePeerMac,
		"wifiRttStartRangingToAwarePeerId":  f.startRangingToAwarePeerID,
		"wifiRttStartRangingToAp":           f.startRangingToAP,
	}
}

// rangingCallback is the single-fire record handed to the platform for one
// request. The facade drops it from the pending set on its first
// invocation; a second invocation is a logged no-op.
type rangingCallback struct {
	id int
	f  *Facade
}

func (c *rangingCallback) OnRangingFailure(status int) {
	if !c.f.finish(c.id) {
		return
	}
	c.f.bus.Post(fmt.Sprintf(eventRangingFailure, c.id), map[string]any{
		"status": status,
	})
}

func (c *rangingCallback) OnRangingResults(results []Result) {
	if !c.f.finish(c.id) {
		return
	}
	packed := make([]map[string]any, len(results))
	for i, r := range results {
		packed[i] = packResult(r)
	}
	c.f.bus.Post(fmt.Sprintf(eventRangingResults, c.id), map[string]any{
		"Results": packed,
	})
}

// finish removes the callback record, reporting whether this was its first
// (and only permitted) invocation.
func (f *Facade) finish(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[id]; !ok {
		slog.Warn("WifiRtt: callback fired more than once, ignoring", "id", id)
		return false
	}
	delete(f.pending, id)
	return true
}

func packResult(r Result) map[string]any {
	out := map[string]any{
		"status": r.Status,
	}
	if r.Status == StatusSuccess {
		out["distanceMm"] = r.DistanceMm
		out["distanceStdDevMm"] = r.DistanceStdDevMm
		out["rssi"] = r.RSSI
		out["timestamp"] = r.TimestampUs
	}
	if r.PeerID != nil {
		out["peerId"] = *r.PeerID
	}
	if r.MAC != nil {
		raw := make([]int, len(r.MAC))
		for i, b := range r.MAC {
			raw[i] = int(b)
		}
		out["mac"] = raw
		out["macAsStringBSSID"] = address.ColonHexFromBytes(r.MAC)
		out["macAsString"] = address.BareHexFromBytes(r.MAC)
	}
	return out
}

func (f *Facade) rttSupported(p rpcserver.Params) (any, error) {
	f.mu.Lock()
	platform := f.platform
	f.mu.Unlock()
	if platform == nil {
		return false, nil
	}
	return platform.RTTSupported(), nil
}

// startRanging registers a fresh callback id and hands the request to the
// platform. The sentinel for a request the platform would not accept is -1.
func (f *Facade) startRanging(req Request) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.platform == nil {
		slog.Error("WifiRtt: ranging manager is shut down")
		return -1
	}
	id := f.nextCallbackID
	f.nextCallbackID++
	f.pending[id] = struct{}{}

	cb := &rangingCallback{id: id, f: f}
	if err := f.platform.StartRanging(req, cb); err != nil {
		slog.Error("WifiRtt: failed to start ranging", "id", id, "error", err)
		delete(f.pending, id)
		return -1
	}
	return id
}

// scanResult is the subset of an access-point scan entry the ranging
// request needs.
type scanResult struct {
	BSSID                 string `json:"BSSID"`
	Frequency             int    `json:"frequency"`
	Is80211McRTTResponder bool   `json:"is80211McRTTResponder"`
}

func targetFromScanResult(sr scanResult) (Target, error) {
	mac, err := address.NewFromString(sr.BSSID)
	if err != nil {
		return Target{}, fmt.Errorf("BSSID %q: %w: %v", sr.BSSID, fault.ErrEncoding, err)
	}
	return Target{
		Kind:               TargetAccessPoint,
		MAC:                mac.Bytes[:],
		Frequency:          sr.Frequency,
		Is80211mcResponder: sr.Is80211McRTTResponder,
	}, nil
}

func (f *Facade) startRangingToAccessPoints(p rpcserver.Params) (any, error) {
	raw, err := p.Raw(0)
	if err != nil {
		return nil, err
	}
	var scans []scanResult
	if err := json.Unmarshal(raw, &scans); err != nil {
		return nil, fmt.Errorf("scanResults: %w: %v", fault.ErrEncoding, err)
	}
	req := Request{Targets: make([]Target, 0, len(scans))}
	for _, sr := range scans {
		t, err := targetFromScanResult(sr)
		if err != nil {
			return nil, err
		}
		req.Targets = append(req.Targets, t)
	}
	return f.startRanging(req), nil
}

// startRangingToAP is the legacy single-AP variant of
// startRangingToAccessPoints.
func (f *Facade) startRangingToAP(p rpcserver.Params) (any, error) {
	raw, err := p.Raw(0)
	if err != nil {
		return nil, err
	}
	var scan scanResult
	if err := json.Unmarshal(raw, &scan); err != nil {
		return nil, fmt.Errorf("scanResult: %w: %v", fault.ErrEncoding, err)
	}
	t, err := targetFromScanResult(scan)
	if err != nil {
		return nil, err
	}
	return f.startRanging(Request{Targets: []Target{t}}), nil
}

func (f *Facade) startRangingToAwarePeerMac(p rpcserver.Params) (any, error) {
	peerMac, err := p.String(0)
	if err != nil {
		return nil, err
	}
	mac, err := address.BytesFromBareHex(peerMac)
	if err != nil {
		return nil, fmt.Errorf("peerMac %q: %w: %v", peerMac, fault.ErrEncoding, err)
	}
	return f.startRanging(Request{Targets: []Target{{
		Kind: TargetAwareMAC,
		MAC:  mac,
	}}}), nil
}

func (f *Facade) startRangingToAwarePeerID(p rpcserver.Params) (any, error) {
	peerID, err := p.Int(0)
	if err != nil {
		return nil, err
	}
	return f.startRanging(Request{Targets: []Target{{
		Kind:   TargetAwarePeerID,
		PeerID: peerID,
	}}}), nil
}
