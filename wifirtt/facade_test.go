package wifirtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/khadas/scriptbridge/events"
	"github.com/khadas/scriptbridge/rpcserver"
)

func params(args ...any) rpcserver.Params {
	var p rpcserver.Params
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		p = append(p, raw)
	}
	return p
}

type fakePlatform struct {
	mu        sync.Mutex
	supported bool
	failStart bool
	requests  []Request
	callbacks []Callback
}

func (f *fakePlatform) RTTSupported() bool { return f.supported }

func (f *fakePlatform) StartRanging(req Request, cb Callback) error {
	if f.failStart {
		return errors.New("ranging rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.callbacks = append(f.callbacks, cb)
	return nil
}

func (f *fakePlatform) lastCallback() Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks[len(f.callbacks)-1]
}

func waitEvent(t *testing.T, bus *events.Bus, name string) events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := bus.Wait(time.Until(deadline))
		if !ok {
			break
		}
		if ev.Name == name {
			return ev
		}
	}
	t.Fatalf("event %q never arrived", name)
	return events.Event{}
}

func TestRTTSupported(t *testing.T) {
	f := NewFacade(&fakePlatform{supported: true}, events.NewBus(16))
	result, err := f.rttSupported(params())
	if err != nil {
		t.Fatal(err)
	}
	if result != true {
		t.Fatalf("rttSupported = %v", result)
	}
}

func TestRTTSupportedAfterShutdown(t *testing.T) {
	f := NewFacade(&fakePlatform{supported: true}, events.NewBus(16))
	f.Shutdown()
	result, err := f.rttSupported(params())
	if err != nil {
		t.Fatal(err)
	}
	if result != false {
		t.Fatalf("rttSupported after shutdown = %v", result)
	}
}

func TestCallbackIDsIncreaseFromOne(t *testing.T) {
	platform := &fakePlatform{supported: true}
	f := NewFacade(platform, events.NewBus(16))

	for want := 1; want <= 3; want++ {
		result, err := f.startRangingToAwarePeerID(params(want * 10))
		if err != nil {
			t.Fatal(err)
		}
		if result != want {
			t.Fatalf("callback id = %v, want %d", result, want)
		}
	}
}

func TestConcurrentCallbackIDsAreUnique(t *testing.T) {
	platform := &fakePlatform{supported: true}
	f := NewFacade(platform, events.NewBus(256))

	const n = 50
	ids := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			result, err := f.startRangingToAwarePeerID(params(slot))
			if err != nil {
				t.Errorf("startRanging: %v", err)
				return
			}
			ids[slot] = result.(int)
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids not a contiguous run from 1: %v", ids)
		}
	}
}

func TestStartRangingFailureIsMinusOne(t *testing.T) {
	f := NewFacade(&fakePlatform{failStart: true}, events.NewBus(16))
	result, err := f.startRangingToAwarePeerID(params(7))
	if err != nil {
		t.Fatal(err)
	}
	if result != -1 {
		t.Fatalf("startRanging on rejection = %v, want -1", result)
	}
	if len(f.pending) != 0 {
		t.Fatal("rejected request left a pending callback record")
	}
}

func TestStartRangingAfterShutdownIsMinusOne(t *testing.T) {
	f := NewFacade(&fakePlatform{}, events.NewBus(16))
	f.Shutdown()
	result, err := f.startRangingToAwarePeerID(params(7))
	if err != nil {
		t.Fatal(err)
	}
	if result != -1 {
		t.Fatalf("startRanging after shutdown = %v, want -1", result)
	}
}

func TestRangingFailureEvent(t *testing.T) {
	platform := &fakePlatform{}
	bus := events.NewBus(16)
	f := NewFacade(platform, bus)

	result, _ := f.startRangingToAwarePeerID(params(7))
	id := result.(int)

	platform.lastCallback().OnRangingFailure(FailCodeRttNotAvailable)
	ev := waitEvent(t, bus, fmt.Sprintf("WifiRttRangingFailure_%d", id))
	data := ev.Data.(map[string]any)
	if data["status"] != FailCodeRttNotAvailable {
		t.Fatalf("status = %v", data["status"])
	}
}

func TestRangingResultsEvent(t *testing.T) {
	platform := &fakePlatform{}
	bus := events.NewBus(16)
	f := NewFacade(platform, bus)

	scans := []map[string]any{{
		"BSSID":                 "aa:bb:cc:dd:ee:ff",
		"frequency":             5180,
		"is80211McRTTResponder": true,
	}}
	result, err := f.startRangingToAccessPoints(params(scans))
	if err != nil {
		t.Fatal(err)
	}
	id := result.(int)

	if len(platform.requests[0].Targets) != 1 {
		t.Fatalf("targets = %v", platform.requests[0].Targets)
	}
	target := platform.requests[0].Targets[0]
	if target.Kind != TargetAccessPoint || target.Frequency != 5180 || !target.Is80211mcResponder {
		t.Fatalf("target = %+v", target)
	}

	platform.lastCallback().OnRangingResults([]Result{{
		Status:           StatusSuccess,
		DistanceMm:       2500,
		DistanceStdDevMm: 120,
		RSSI:             -48,
		TimestampUs:      123456789,
		MAC:              []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	}})

	ev := waitEvent(t, bus, fmt.Sprintf("WifiRttRangingResults_%d", id))
	data := ev.Data.(map[string]any)
	packed := data["Results"].([]map[string]any)
	if len(packed) != 1 {
		t.Fatalf("Results = %v", packed)
	}
	r := packed[0]
	if r["status"] != StatusSuccess || r["distanceMm"] != 2500 {
		t.Fatalf("result = %v", r)
	}
	if r["macAsStringBSSID"] != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("macAsStringBSSID = %v", r["macAsStringBSSID"])
	}
	if r["macAsString"] != "AABBCCDDEEFF" {
		t.Fatalf("macAsString = %v", r["macAsString"])
	}
}

func TestCallbackFiresExactlyOnce(t *testing.T) {
	platform := &fakePlatform{}
	bus := events.NewBus(16)
	f := NewFacade(platform, bus)

	result, _ := f.startRangingToAwarePeerID(params(7))
	id := result.(int)
	cb := platform.lastCallback()

	cb.OnRangingFailure(FailCodeGeneric)
	// the record is gone; a second delivery on either path is dropped
	cb.OnRangingFailure(FailCodeGeneric)
	cb.OnRangingResults([]Result{{Status: StatusSuccess}})

	waitEvent(t, bus, fmt.Sprintf("WifiRttRangingFailure_%d", id))
	if evs := bus.Poll(0); len(evs) != 0 {
		t.Fatalf("extra events after single-fire callback: %v", evs)
	}
	if len(f.pending) != 0 {
		t.Fatal("callback record survived its invocation")
	}
}

func TestPackResultOmitsDistanceOnFailure(t *testing.T) {
	packed := packResult(Result{Status: StatusFail, DistanceMm: 999})
	if packed["status"] != StatusFail {
		t.Fatalf("status = %v", packed["status"])
	}
	if _, ok := packed["distanceMm"]; ok {
		t.Fatal("failed result carries a distance")
	}
}

func TestPackResultPeerID(t *testing.T) {
	peer := 42
	packed := packResult(Result{Status: StatusSuccess, PeerID: &peer})
	if packed["peerId"] != 42 {
		t.Fatalf("peerId = %v", packed["peerId"])
	}
}

func TestStartRangingToAwarePeerMac(t *testing.T) {
	platform := &fakePlatform{}
	f := NewFacade(platform, events.NewBus(16))

	if _, err := f.startRangingToAwarePeerMac(params("AABBCCDDEEFF")); err != nil {
		t.Fatal(err)
	}
	target := platform.requests[0].Targets[0]
	if target.Kind != TargetAwareMAC || len(target.MAC) != 6 || target.MAC[0] != 0xAA {
		t.Fatalf("target = %+v", target)
	}

	if _, err := f.startRangingToAwarePeerMac(params("not-hex")); err == nil {
		t.Fatal("malformed peer MAC accepted")
	}
}

func TestStartRangingToApLegacy(t *testing.T) {
	platform := &fakePlatform{}
	f := NewFacade(platform, events.NewBus(16))

	scan := map[string]any{"BSSID": "aa:bb:cc:dd:ee:ff", "frequency": 2412}
	result, err := f.startRangingToAP(params(scan))
	if err != nil {
		t.Fatal(err)
	}
	if result != 1 {
		t.Fatalf("callback id = %v", result)
	}
	if len(platform.requests[0].Targets) != 1 {
		t.Fatalf("targets = %v", platform.requests[0].Targets)
	}
}
