package netconf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aicers/roxy/internal/proc"
	"github.com/aicers/roxy/pkg/reconcile"
	"github.com/stretchr/testify/require"
)

// fakeEnv plays both the live address table and the utility runner, so a
// successful "ip addr del" is reflected in later enumerations.
type fakeEnv struct {
	addrs    map[string][]string
	failDel  map[string]int
	listErr  map[string]error
	applyErr error
	calls    []string
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		addrs:   map[string][]string{},
		failDel: map[string]int{},
		listErr: map[string]error{},
	}
}

func (f *fakeEnv) Run(ctx context.Context, utility string, args ...string) (proc.Output, error) {
	f.calls = append(f.calls, utility+" "+strings.Join(args, " "))

	switch utility {
	case "netplan":
		if f.applyErr != nil {
			return proc.Output{}, f.applyErr
		}
	case "ip":
		if len(args) == 5 && args[0] == "addr" && args[1] == "del" && args[3] == "dev" {
			addr, iface := args[2], args[4]
			if f.failDel[addr] > 0 {
				f.failDel[addr]--
				return proc.Output{}, reconcile.NewError(reconcile.KindExecutionFailed, "RTNETLINK answers: invalid argument")
			}
			kept := f.addrs[iface][:0]
			for _, a := range f.addrs[iface] {
				if a != addr {
					kept = append(kept, a)
				}
			}
			f.addrs[iface] = kept
		}
	}
	return proc.Output{}, nil
}

func (f *fakeEnv) Addresses(iface string) ([]string, error) {
	if err := f.listErr[iface]; err != nil {
		return nil, err
	}
	return append([]string{}, f.addrs[iface]...), nil
}

func (f *fakeEnv) deleteCalls() []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "ip addr del") {
			out = append(out, c)
		}
	}
	return out
}

func newTestReconciler(t *testing.T, env *fakeEnv) *Reconciler {
	t.Helper()
	dir := t.TempDir()
	seed := "network:\n  version: 2\n  ethernets:\n    eth0:\n      dhcp4: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00-installer.yaml"), []byte(seed), 0o644))

	r := New(env, env, dir)
	r.backoff = time.Millisecond
	return r
}

func staticIface(addrs ...string) reconcile.InterfaceConfig {
	return reconcile.InterfaceConfig{Addresses: addrs}
}

func TestReconcileDeletesOnlyStaleAddress(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth0"] = []string{"192.0.2.1/24", "192.0.2.9/24"}

	r := newTestReconciler(t, env)
	snap, changed, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": staticIface("192.0.2.1/24")})
	require.NoError(t, err)
	require.True(t, changed)
	require.Empty(t, snap.Stale)

	require.Equal(t, []string{"ip addr del 192.0.2.9/24 dev eth0"}, env.deleteCalls())
	require.Equal(t, []string{"192.0.2.1/24"}, snap.Interfaces["eth0"])
}

func TestReconcileRetriesTransientDeleteFailure(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth0"] = []string{"192.0.2.1/24", "192.0.2.9/24"}
	env.failDel["192.0.2.9/24"] = 1

	r := newTestReconciler(t, env)
	snap, _, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": staticIface("192.0.2.1/24")})
	require.NoError(t, err)
	require.Empty(t, snap.Stale)
	require.Len(t, env.deleteCalls(), 2)
}

func TestReconcileReportsStaleAfterBudget(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth0"] = []string{"192.0.2.9/24"}
	env.failDel["192.0.2.9/24"] = 10

	r := newTestReconciler(t, env)
	snap, changed, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": staticIface()})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, map[string][]string{"eth0": {"192.0.2.9/24"}}, snap.Stale)
	require.Len(t, env.deleteCalls(), 3)
}

func TestReconcileSkipsDHCPInterfaces(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth0"] = []string{"10.0.0.5/24"}

	r := newTestReconciler(t, env)
	_, _, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": {DHCP4: true}})
	require.NoError(t, err)
	require.Empty(t, env.deleteCalls())
}

func TestReconcileApplyFailurePropagates(t *testing.T) {
	env := newFakeEnv()
	env.applyErr = reconcile.NewError(reconcile.KindExecutionFailed, "netplan apply failed")

	r := newTestReconciler(t, env)
	_, _, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": staticIface("192.0.2.1/24")})
	require.Equal(t, reconcile.KindExecutionFailed, reconcile.KindOf(err))
	require.Empty(t, env.deleteCalls())
}

func TestReconcileCollapsesNetplanFiles(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth1"] = []string{"10.1.0.1/24"}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00-base.yaml"),
		[]byte("network:\n  version: 2\n  ethernets:\n    eth0:\n      dhcp4: true\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "50-extra.yaml"),
		[]byte("network:\n  ethernets:\n    eth1:\n      addresses: [10.9.9.9/24]\n"), 0o644))

	r := New(env, env, dir)
	r.backoff = time.Millisecond

	_, changed, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth1": staticIface("10.1.0.1/24")})
	require.NoError(t, err)
	require.True(t, changed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "00-base.yaml", entries[0].Name())

	np, files, err := loadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Contains(t, np.Network.Ethernets, "eth0")
	require.Equal(t, []string{"10.1.0.1/24"}, np.Network.Ethernets["eth1"].Addresses)
}

func TestReconcileIdempotent(t *testing.T) {
	env := newFakeEnv()
	env.addrs["eth0"] = []string{"192.0.2.1/24"}

	r := newTestReconciler(t, env)
	desired := map[string]reconcile.InterfaceConfig{"eth0": staticIface("192.0.2.1/24")}

	_, changed, err := r.Reconcile(context.Background(), desired)
	require.NoError(t, err)
	require.True(t, changed)

	_, changed, err = r.Reconcile(context.Background(), desired)
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, env.deleteCalls())
}

func TestReconcileUnverifiableInterfaceReportedStale(t *testing.T) {
	env := newFakeEnv()
	env.listErr["eth0"] = errors.New("netlink: device busy")

	r := newTestReconciler(t, env)
	snap, changed, err := r.Reconcile(context.Background(),
		map[string]reconcile.InterfaceConfig{"eth0": staticIface("192.0.2.1/24")})
	require.NoError(t, err)
	require.True(t, changed)
	// the interface must not vanish from a clean snapshot
	require.Contains(t, snap.Stale, "eth0")
	require.NotContains(t, snap.Interfaces, "eth0")
}

func TestCanonicalPrefix(t *testing.T) {
	require.Equal(t, canonicalPrefix("::1/64"), canonicalPrefix("0:0:0:0:0:0:0:1/64"))
	require.Equal(t, "192.0.2.1/32", canonicalPrefix("192.0.2.1"))
	require.Equal(t, "::1/128", canonicalPrefix("::1"))
	require.NotEqual(t, canonicalPrefix("192.0.2.1/24"), canonicalPrefix("192.0.2.2/24"))
}
