// Package netconf reconciles actual network-interface state against the
// declared configuration. netplan is known not to remove an address from a
// non-running interface, and to unreliably remove one even from a running
// interface, so applying the declaration is followed by an explicit
// diff-then-delete step against the live address list.
package netconf

import (
	"context"
	"log/slog"
	"net/netip"
	"strconv"
	"time"

	"github.com/aicers/roxy/internal/metrics"
	"github.com/aicers/roxy/internal/proc"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

const (
	// staleDeleteAttempts bounds the diff-then-delete step. Interface
	// state can be transiently inconsistent right after netplan apply.
	staleDeleteAttempts = 3
	staleDeleteBackoff  = 200 * time.Millisecond
)

// AddrLister enumerates the addresses currently assigned to an interface,
// in CIDR form. Production uses the netlink implementation; tests fake it.
type AddrLister interface {
	Addresses(iface string) ([]string, error)
}

type Reconciler struct {
	runner proc.Runner
	lister AddrLister
	dir    string
	logger *slog.Logger

	attempts int
	backoff  time.Duration
}

func New(runner proc.Runner, lister AddrLister, dir string) *Reconciler {
	if dir == "" {
		dir = DefaultNetplanDir
	}
	return &Reconciler{
		runner:   runner,
		lister:   lister,
		dir:      dir,
		logger:   logger.Component(logger.Netconf),
		attempts: staleDeleteAttempts,
		backoff:  staleDeleteBackoff,
	}
}

// Dir is the netplan directory this reconciler owns. Callers serializing
// access to the declaration key their locks on it.
func (r *Reconciler) Dir() string { return r.dir }

// Reconcile writes the desired declaration, applies it, then deletes any
// address still present on a desired interface but absent from its
// declaration. Stale addresses that survive the retry budget are reported
// in the snapshot rather than failing the request.
func (r *Reconciler) Reconcile(ctx context.Context, desired map[string]reconcile.InterfaceConfig) (*reconcile.Snapshot, bool, error) {
	np, files, err := loadDir(r.dir)
	if err != nil {
		return nil, false, err
	}
	for name, cfg := range desired {
		np.setInterface(name, cfg)
	}

	changed, err := np.save(r.dir, files)
	if err != nil {
		return nil, changed, err
	}

	if _, err := r.runner.Run(ctx, "netplan", "apply"); err != nil {
		return nil, changed, err
	}

	stale := r.deleteStale(ctx, desired)
	if len(stale) > 0 {
		changed = true
	}

	snapshot := &reconcile.Snapshot{Interfaces: map[string][]string{}}
	for name := range desired {
		addrs, err := r.lister.Addresses(name)
		if err != nil {
			// An interface whose state cannot be read is reported stale,
			// never silently dropped from a successful snapshot.
			r.logger.Warn("Failed to list addresses for snapshot", "interface", name, "error", err)
			if stale == nil {
				stale = map[string][]string{}
			}
			if _, ok := stale[name]; !ok {
				stale[name] = nil
			}
			continue
		}
		snapshot.Interfaces[name] = addrs
	}
	if len(stale) > 0 {
		snapshot.Stale = stale
	}

	return snapshot, changed, nil
}

// deleteStale runs the bounded retry loop. Each pass re-enumerates the
// live addresses, so an address removed by a previous pass (or by the
// interface finally coming up) drops out of the work list.
func (r *Reconciler) deleteStale(ctx context.Context, desired map[string]reconcile.InterfaceConfig) map[string][]string {
	backoff := r.backoff
	var remaining map[string][]string

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			metrics.StaleRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return remaining
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		remaining = r.deletePass(ctx, desired)
		if len(remaining) == 0 {
			return nil
		}
		r.logger.Warn("Stale addresses remain", "attempt", attempt+1, "stale", remaining)
	}

	return remaining
}

func (r *Reconciler) deletePass(ctx context.Context, desired map[string]reconcile.InterfaceConfig) map[string][]string {
	remaining := map[string][]string{}

	for name, cfg := range desired {
		if cfg.DHCP4 {
			// dhcp interfaces own their addresses; nothing is stale.
			continue
		}

		actual, err := r.lister.Addresses(name)
		if err != nil {
			// The interface cannot be verified this pass; keep it on the
			// work list so a persistent failure ends as partial success.
			r.logger.Warn("Failed to list addresses", "interface", name, "error", err)
			remaining[name] = nil
			continue
		}

		want := map[string]bool{}
		for _, a := range cfg.Addresses {
			want[canonicalPrefix(a)] = true
		}

		for _, addr := range actual {
			if want[canonicalPrefix(addr)] {
				continue
			}
			// Delete exactly this interface/address pair, never a flush.
			if _, err := r.runner.Run(ctx, "ip", "addr", "del", addr, "dev", name); err != nil {
				r.logger.Warn("Failed to delete stale address",
					"interface", name, "address", addr, "error", err)
				remaining[name] = append(remaining[name], addr)
			} else {
				r.logger.Info("Deleted stale address", "interface", name, "address", addr)
			}
		}
	}

	return remaining
}

func canonicalPrefix(s string) string {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Addr().String() + "/" + strconv.Itoa(p.Bits())
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return a.String() + "/" + strconv.Itoa(a.BitLen())
	}
	return s
}
