package wifirtt

import (
	"log/slog"
	"os"
)

// sysfsPlatform probes the wireless stack through sysfs. Feature support
// means at least one 802.11 phy is registered. There is no generic
// userspace FTM initiator interface, so ranging requests complete
// asynchronously with the not-available failure code; automation setups
// that need real measurements plug in their own Platform.
type sysfsPlatform struct {
	dir string
}

func NewSysfsPlatform(dir string) Platform {
	return &sysfsPlatform{dir: dir}
}

func (p *sysfsPlatform) RTTSupported() bool {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		slog.Debug("WifiRtt: no wireless phys visible", "dir", p.dir, "error", err)
		return false
	}
	return len(entries) > 0
}

func (p *sysfsPlatform) StartRanging(req Request, cb Callback) error {
	slog.Info("WifiRtt: no FTM initiator available, reporting ranging unavailable",
		"targets", len(req.Targets))
	go cb.OnRangingFailure(FailCodeRttNotAvailable)
	return nil
}
