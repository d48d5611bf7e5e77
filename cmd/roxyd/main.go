package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aicers/roxy/internal/channel"
	"github.com/aicers/roxy/internal/gate"
	"github.com/aicers/roxy/internal/metrics"
	"github.com/aicers/roxy/internal/netconf"
	"github.com/aicers/roxy/internal/patcher"
	"github.com/aicers/roxy/internal/proc"
	"github.com/aicers/roxy/internal/resolver"
	"github.com/aicers/roxy/internal/service"
	"github.com/aicers/roxy/pkg/component"
	"github.com/aicers/roxy/pkg/config"
	"github.com/aicers/roxy/pkg/hwinfo"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/version"
)

func main() {
	configPath := flag.String("config", "/etc/roxy/roxyd.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("roxyd " + version.Full())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Configure(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Components)

	mainLog := logger.Component(logger.Main)
	mainLog.Info("Starting roxyd", "version", version.Full())

	if info, err := hwinfo.Read(hwinfo.DefaultVersionFile); err != nil {
		mainLog.Warn("Failed to read appliance identity", "error", err)
	} else {
		mainLog.Info("Appliance identity",
			"os", info.OSName, "os_version", info.OSVersion,
			"product", info.ProductName, "product_version", info.ProductVersion)
	}

	res := resolver.New()
	runner := proc.NewRunner(res, cfg.Exec.Timeout.Std())

	g := gate.New(
		patcher.New(),
		netconf.New(runner, netconf.NetlinkLister{}, cfg.Netplan.Dir),
		service.NewController(runner),
		gate.DefaultTargets(),
	)

	orch := component.NewOrchestrator()
	orch.Register(channel.NewServer(cfg.Channel, g))
	if cfg.Metrics.Enabled {
		orch.Register(metrics.New(cfg.Metrics.Listen))
	}

	ctx := context.Background()
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start components: %v", err)
	}

	mainLog.Info("roxyd started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	mainLog.Info("Shutting down roxyd...")

	if err := orch.Stop(ctx); err != nil {
		mainLog.Error("Error stopping components", "error", err)
	}

	mainLog.Info("roxyd stopped")
}
