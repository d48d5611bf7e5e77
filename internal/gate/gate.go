// Package gate is the single validated path to privileged actions. A
// request moves Received -> Validated -> Dispatched -> Completed;
// rejection is only possible before any side effect. No other code path
// calls the patcher targets or spawns utilities.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/aicers/roxy/internal/metrics"
	"github.com/aicers/roxy/internal/netconf"
	"github.com/aicers/roxy/internal/patcher"
	"github.com/aicers/roxy/internal/service"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

// Targets holds the managed-file table. Production uses DefaultTargets;
// tests point the paths at temp files.
type Targets struct {
	Ntp    patcher.Target
	Sshd   patcher.Target
	Syslog patcher.Target
}

func DefaultTargets() Targets {
	return Targets{
		Ntp:    patcher.NtpConf,
		Sshd:   patcher.SshdConfig,
		Syslog: patcher.RsyslogRemote,
	}
}

type Gate struct {
	patcher    *patcher.Patcher
	reconciler *netconf.Reconciler
	services   *service.Controller
	targets    Targets
	locks      *lockTable
	logger     *slog.Logger
}

func New(p *patcher.Patcher, r *netconf.Reconciler, c *service.Controller, targets Targets) *Gate {
	return &Gate{
		patcher:    p,
		reconciler: r,
		services:   c,
		targets:    targets,
		locks:      newLockTable(),
		logger:     logger.Component(logger.Gate),
	}
}

// Handle processes one request to completion. Requests touching the same
// target serialize on the lock table; the lock is released on every exit
// path.
func (g *Gate) Handle(ctx context.Context, req reconcile.Request) reconcile.Result {
	start := time.Now()

	res := g.handle(ctx, req)

	metrics.RequestsTotal.WithLabelValues(string(req.Operation), string(res.Status)).Inc()
	metrics.RequestDuration.WithLabelValues(string(req.Operation)).Observe(time.Since(start).Seconds())

	g.logger.Info("Request completed",
		"id", req.ID, "operation", string(req.Operation), "requester", req.Requester,
		"status", string(res.Status), "changed", res.Changed, "elapsed", time.Since(start))
	return res
}

func (g *Gate) handle(ctx context.Context, req reconcile.Request) reconcile.Result {
	if err := validate(&req); err != nil {
		g.logger.Warn("Request rejected",
			"id", req.ID, "operation", string(req.Operation), "requester", req.Requester, "error", err)
		return reconcile.Failed(req.ID, err)
	}

	release := g.locks.acquire(g.lockKeys(&req))
	defer release()

	switch req.Operation {
	case reconcile.OpApplyNetworkConfig:
		return g.applyNetwork(ctx, &req)
	case reconcile.OpSetNtpServer:
		return g.patchAndRestart(ctx, &req, g.targets.Ntp, patcher.NtpSpec(req.Ntp.Servers), "ntp")
	case reconcile.OpSetSshPort:
		return g.patchAndRestart(ctx, &req, g.targets.Sshd, patcher.SshPortSpec(req.SshPort.Port), "sshd")
	case reconcile.OpSetRemoteSyslogTarget:
		return g.patchAndRestart(ctx, &req, g.targets.Syslog,
			patcher.SyslogSpec(req.Syslog.Target, req.Syslog.Protocol), "rsyslog")
	case reconcile.OpControlService:
		return g.controlService(ctx, &req, req.Service.Name, req.Service.Action)
	case reconcile.OpToggleFirewall:
		return g.controlService(ctx, &req, "ufw", req.Firewall.Action)
	}

	// validate() admits only the operations above.
	return reconcile.Failed(req.ID, reconcile.NewError(reconcile.KindInvalidRequest,
		"unhandled operation %q", req.Operation))
}

// lockKeys maps a validated request to the targets it mutates.
func (g *Gate) lockKeys(req *reconcile.Request) []string {
	switch req.Operation {
	case reconcile.OpApplyNetworkConfig:
		// Every interface lives in the one netplan declaration the
		// reconciler load-modify-saves, so network requests serialize on
		// that file even when their interface sets are disjoint.
		return []string{"file:" + g.reconciler.Dir()}
	case reconcile.OpSetNtpServer:
		return []string{"file:" + g.targets.Ntp.Path}
	case reconcile.OpSetSshPort:
		return []string{"file:" + g.targets.Sshd.Path}
	case reconcile.OpSetRemoteSyslogTarget:
		return []string{"file:" + g.targets.Syslog.Path}
	case reconcile.OpControlService:
		return []string{"svc:" + req.Service.Name}
	case reconcile.OpToggleFirewall:
		return []string{"svc:ufw"}
	}
	return nil
}

func (g *Gate) applyNetwork(ctx context.Context, req *reconcile.Request) reconcile.Result {
	snapshot, changed, err := g.reconciler.Reconcile(ctx, req.Network.Interfaces)
	if err != nil {
		return reconcile.Failed(req.ID, err)
	}

	if len(snapshot.Stale) > 0 {
		res := reconcile.Partial(req.ID, "interface state could not be fully reconciled")
		res.Snapshot = snapshot
		return res
	}

	res := reconcile.Success(req.ID, changed)
	res.Snapshot = snapshot
	return res
}

// patchAndRestart applies one managed-file patch and, when content
// changed, restarts the daemon that reads it. A restart failure after a
// successful patch is a partial success, never upgraded.
func (g *Gate) patchAndRestart(ctx context.Context, req *reconcile.Request, target patcher.Target, spec patcher.Spec, svc string) reconcile.Result {
	changed, err := g.patcher.Apply(target, spec)
	if err != nil {
		return reconcile.Failed(req.ID, err)
	}
	if !changed {
		return reconcile.Success(req.ID, false)
	}

	metrics.PatchChangesTotal.WithLabelValues(target.Path).Inc()

	if err := g.services.Restart(ctx, svc); err != nil {
		res := reconcile.Partial(req.ID, svc+" restart failed after config change")
		res.Error = reconcile.AsError(err)
		return res
	}
	return reconcile.Success(req.ID, true)
}

func (g *Gate) controlService(ctx context.Context, req *reconcile.Request, name string, action reconcile.Action) reconcile.Result {
	state, err := g.services.Control(ctx, name, action)
	if err != nil {
		return reconcile.Failed(req.ID, err)
	}

	res := reconcile.Success(req.ID, action != reconcile.ActionStatus)
	res.Snapshot = &reconcile.Snapshot{Service: &state}
	return res
}
