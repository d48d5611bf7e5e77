// roxy is the one-shot broker: it reads a single JSON request on stdin,
// performs the privileged action and writes the JSON result to stdout.
// It is intended to be installed setuid root and invoked by the manager
// process. Logs go to stderr only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aicers/roxy/internal/gate"
	"github.com/aicers/roxy/internal/netconf"
	"github.com/aicers/roxy/internal/patcher"
	"github.com/aicers/roxy/internal/proc"
	"github.com/aicers/roxy/internal/resolver"
	"github.com/aicers/roxy/internal/service"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
	"github.com/aicers/roxy/pkg/version"
)

func main() {
	execTimeout := flag.Duration("exec-timeout", 30*time.Second, "Per-utility execution timeout")
	netplanDir := flag.String("netplan-dir", netconf.DefaultNetplanDir, "Netplan configuration directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("roxy " + version.Full())
		return
	}

	logger.Configure("text", logger.LogLevel(*logLevel), nil)
	mainLog := logger.Component(logger.Main)

	var req reconcile.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		mainLog.Error("Failed to decode request", "error", err)
		writeResult(reconcile.Failed("", reconcile.WrapError(
			reconcile.KindInvalidRequest, err, "malformed request")))
		os.Exit(1)
	}

	res := resolver.New()
	runner := proc.NewRunner(res, *execTimeout)

	g := gate.New(
		patcher.New(),
		netconf.New(runner, netconf.NetlinkLister{}, *netplanDir),
		service.NewController(runner),
		gate.DefaultTargets(),
	)

	result := g.Handle(context.Background(), req)
	writeResult(result)

	if result.Status == reconcile.StatusFailure {
		os.Exit(1)
	}
}

func writeResult(res reconcile.Result) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
	}
}
