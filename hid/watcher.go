package hid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/pilebones/go-udev/netlink"

	"github.com/khadas/scriptbridge/events"
)

const (
	eventInputNodeAdded   = "BluetoothHidInputNodeAdded"
	eventInputNodeRemoved = "BluetoothHidInputNodeRemoved"
)

// NodeWatcher relays kernel hidraw/input node add and remove uevents as
// informational events. It never touches facade or proxy state; scripts
// that care correlate the node events with connection-state changes.
type NodeWatcher struct {
	bus *events.Bus
}

func NewNodeWatcher(bus *events.Bus) *NodeWatcher {
	return &NodeWatcher{bus: bus}
}

func ptrTo[T any](v T) *T {
	return &v
}

func (w *NodeWatcher) Start(ctx context.Context) {
	conn := netlink.UEventConn{}
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		slog.Error("conn.Connect()", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("connected to udev netlink socket", "fd", conn.Fd, "addr", conn.Addr)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	rules := &netlink.RuleDefinitions{}

	for _, subsystem := range []string{"hidraw", "input"} {
		for _, action := range []string{"add", "remove"} {
			rules.AddRule(netlink.RuleDefinition{
				Action: ptrTo(action),
				Env: map[string]string{
					"SUBSYSTEM": subsystem,
				},
			})
		}
	}
	quit := conn.Monitor(queue, errs, rules)

	for {
		select {
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			slog.Error("conn.Monitor() sent an error", "error", err)
		case <-ctx.Done():
			close(quit)
			return
		}
	}
}

// pollForDevice waits for udevd to finish setting up the node before we
// open it; the uevent carrying DEVNAME races with the rules engine.
func pollForDevice(path string) (*evdev.InputDevice, error) {
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("timed out waiting for device at %s", path)
		case <-ticker.C:
			dev, err := evdev.Open(path)
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			} else if err != nil {
				slog.Warn("evdev.Open()", "path", path, "error", err)
				return nil, err
			}
			return dev, nil
		}
	}
}

func (w *NodeWatcher) handleEvent(uevent netlink.UEvent) {
	devname := uevent.Env["DEVNAME"]
	if devname == "" {
		slog.Debug("ignoring uevent with no DEVNAME")
		return
	}
	devPath := "/dev/" + devname
	subsystem := uevent.Env["SUBSYSTEM"]

	switch uevent.Action {
	case "add":
		data := map[string]any{
			"node":      devPath,
			"subsystem": subsystem,
		}
		// Input nodes carry a device name and phys (the peer's address for
		// Bluetooth HID); hidraw nodes don't speak evdev.
		if subsystem == "input" {
			dev, err := pollForDevice(devPath)
			if err != nil {
				slog.Error("evdev.Open()", "path", devPath, "error", err)
				return
			}
			if name, err := dev.Name(); err == nil {
				data["name"] = name
			}
			if phys, err := dev.PhysicalLocation(); err == nil {
				data["phys"] = phys
			}
			dev.Close()
		}
		slog.Info("input node added", "node", devPath, "subsystem", subsystem)
		w.bus.Post(eventInputNodeAdded, data)
	case "remove":
		slog.Info("input node removed", "node", devPath, "subsystem", subsystem)
		w.bus.Post(eventInputNodeRemoved, map[string]any{
			"node":      devPath,
			"subsystem": subsystem,
		})
	}
}
