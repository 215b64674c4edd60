// scriptbridged exposes device subsystems (IPsec, Bluetooth HID, Wi-Fi RTT)
// to a remote scripting client over JSON-RPC, relaying asynchronous platform
// callbacks as named events.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/khadas/scriptbridge/config"
	"github.com/khadas/scriptbridge/core/log"
	"github.com/khadas/scriptbridge/events"
	"github.com/khadas/scriptbridge/hid"
	"github.com/khadas/scriptbridge/ipsec"
	"github.com/khadas/scriptbridge/rpcserver"
	"github.com/khadas/scriptbridge/wifirtt"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(1)
	}
	log.ConfigureDaemonLogger(log.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	slog.Info("Go Version", "version", runtime.Version(), "hostname", must(os.Hostname()))

	bus := events.NewBus(cfg.EventBufferSize)
	hub := events.NewHub(bus)
	go hub.Run(ctx.Done())

	server := rpcserver.New(cfg.Listen)
	server.Handle("GET /events/ws", hub)

	var hidProxy hid.ProfileProxy
	proxy, err := hid.NewBluezProxy(cfg.Adapter, cfg.HidrawDir, bus)
	if err != nil {
		slog.Error("Failed to connect to BlueZ, HID facade will stay unready", "error", err)
		hidProxy = hid.NewUnavailableProxy()
	} else {
		hidProxy = proxy
		watcher := hid.NewNodeWatcher(bus)
		go watcher.Start(ctx)
		go func() {
			if err := proxy.WaitReady(cfg.ReadyTimeout); err != nil {
				slog.Warn("HID profile proxy still unready", "timeout", cfg.ReadyTimeout, "error", err)
				return
			}
			slog.Info("HID profile proxy ready")
		}()
	}

	facades := []rpcserver.Receiver{
		events.NewFacade(bus),
		ipsec.NewFacade(ipsec.NewLinuxPlatform()),
		hid.NewFacade(hidProxy),
		wifirtt.NewFacade(wifirtt.NewSysfsPlatform(cfg.WifiSysfsDir), bus),
	}
	for _, f := range facades {
		if err := server.Register(f); err != nil {
			slog.Error("Failed to register facade", "facade", f.Name(), "error", err)
			os.Exit(1)
		}
	}

	if err := server.Start(ctx); err != nil {
		slog.Error("RPC server failed", "error", err)
		os.Exit(1)
	}
}
