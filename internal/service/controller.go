// Package service starts, stops and inspects the daemons the broker
// manages. Ordinary daemons go through the service manager; the firewall
// is driven through its own CLI because systemd's unit status does not
// track ufw's enabled state.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aicers/roxy/internal/proc"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

type via int

const (
	viaSystemd via = iota
	viaFirewall
)

type route struct {
	unit string
	via  via
}

// routing is the fixed service table. Services whose own tooling drifts
// from the service manager's view (like ufw) get a dedicated route here
// instead of ad hoc branches elsewhere.
var routing = map[string]route{
	"ntp":     {unit: "ntp", via: viaSystemd},
	"rsyslog": {unit: "rsyslog", via: viaSystemd},
	"sshd":    {unit: "ssh", via: viaSystemd},
	"ufw":     {via: viaFirewall},
}

// Known reports whether name is a managed service.
func Known(name string) bool {
	_, ok := routing[name]
	return ok
}

type Controller struct {
	runner proc.Runner
	logger *slog.Logger
}

func NewController(runner proc.Runner) *Controller {
	return &Controller{
		runner: runner,
		logger: logger.Component(logger.Service),
	}
}

// Control dispatches on service identity first, then action. Daemon
// services accept start/stop/status; the firewall accepts
// enable/disable/status.
func (c *Controller) Control(ctx context.Context, name string, action reconcile.Action) (reconcile.ServiceState, error) {
	rt, ok := routing[name]
	if !ok {
		return unknownState(""), reconcile.NewError(reconcile.KindInvalidRequest, "unknown service %q", name)
	}

	if rt.via == viaFirewall {
		return c.firewall(ctx, action)
	}
	return c.systemd(ctx, rt.unit, action)
}

// Restart restarts a daemon service, typically after its configuration
// file was patched.
func (c *Controller) Restart(ctx context.Context, name string) error {
	rt, ok := routing[name]
	if !ok || rt.via != viaSystemd {
		return reconcile.NewError(reconcile.KindInvalidRequest, "service %q cannot be restarted", name)
	}

	if _, err := c.runner.Run(ctx, "systemctl", "restart", rt.unit); err != nil {
		return err
	}
	c.logger.Info("Restarted service", "service", name, "unit", rt.unit)
	return nil
}

func (c *Controller) systemd(ctx context.Context, unit string, action reconcile.Action) (reconcile.ServiceState, error) {
	switch action {
	case reconcile.ActionStart:
		if _, err := c.runner.Run(ctx, "systemctl", "start", unit); err != nil {
			return unknownState(""), err
		}
		return reconcile.ServiceState{State: reconcile.StateRunning}, nil
	case reconcile.ActionStop:
		if _, err := c.runner.Run(ctx, "systemctl", "stop", unit); err != nil {
			return unknownState(""), err
		}
		return reconcile.ServiceState{State: reconcile.StateStopped}, nil
	case reconcile.ActionStatus:
		out, err := c.runner.Run(ctx, "systemctl", "is-active", unit)
		raw := strings.TrimSpace(out.Stdout)
		// is-active exits non-zero for any inactive unit; the printed
		// state is still the answer, not a failure.
		if err != nil && raw == "" {
			return unknownState(raw), err
		}
		return systemdState(raw), nil
	default:
		return unknownState(""), reconcile.NewError(reconcile.KindInvalidRequest,
			"action %q not valid for unit %s", action, unit)
	}
}

func (c *Controller) firewall(ctx context.Context, action reconcile.Action) (reconcile.ServiceState, error) {
	switch action {
	case reconcile.ActionEnable:
		if _, err := c.runner.Run(ctx, "ufw", "--force", "enable"); err != nil {
			return unknownState(""), err
		}
		return reconcile.ServiceState{State: reconcile.StateRunning}, nil
	case reconcile.ActionDisable:
		if _, err := c.runner.Run(ctx, "ufw", "disable"); err != nil {
			return unknownState(""), err
		}
		return reconcile.ServiceState{State: reconcile.StateStopped}, nil
	case reconcile.ActionStatus:
		out, err := c.runner.Run(ctx, "ufw", "status")
		if err != nil {
			return unknownState(strings.TrimSpace(out.Stdout)), err
		}
		return firewallState(out.Stdout), nil
	default:
		return unknownState(""), reconcile.NewError(reconcile.KindInvalidRequest,
			"action %q not valid for the firewall", action)
	}
}

func systemdState(raw string) reconcile.ServiceState {
	st := reconcile.ServiceState{State: reconcile.StateUnknown, Raw: raw}
	switch raw {
	case "active", "activating":
		st.State = reconcile.StateRunning
	case "inactive", "failed", "deactivating":
		st.State = reconcile.StateStopped
	}
	return st
}

func firewallState(output string) reconcile.ServiceState {
	st := reconcile.ServiceState{State: reconcile.StateUnknown, Raw: strings.TrimSpace(output)}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "Status:"); ok {
			switch strings.TrimSpace(after) {
			case "active":
				st.State = reconcile.StateRunning
			case "inactive":
				st.State = reconcile.StateStopped
			}
			return st
		}
	}
	return st
}

func unknownState(raw string) reconcile.ServiceState {
	return reconcile.ServiceState{State: reconcile.StateUnknown, Raw: raw}
}
