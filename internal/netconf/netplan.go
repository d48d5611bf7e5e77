package netconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aicers/roxy/internal/patcher"
	"github.com/aicers/roxy/pkg/reconcile"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultNetplanDir is where interface declarations live.
	DefaultNetplanDir = "/etc/netplan"
	// defaultFileName is used when the directory has no yaml file yet.
	defaultFileName = "01-netcfg.yaml"
)

type Netplan struct {
	Network Network `yaml:"network"`
}

type Network struct {
	Version   int                  `yaml:"version,omitempty"`
	Renderer  string               `yaml:"renderer,omitempty"`
	Ethernets map[string]*Ethernet `yaml:"ethernets,omitempty"`
}

type Ethernet struct {
	DHCP4       *bool        `yaml:"dhcp4,omitempty"`
	Addresses   []string     `yaml:"addresses,omitempty"`
	Gateway4    string       `yaml:"gateway4,omitempty"`
	Nameservers *Nameservers `yaml:"nameservers,omitempty"`
}

type Nameservers struct {
	Addresses []string `yaml:"addresses,omitempty"`
}

// loadDir merges every yaml file under dir into one declaration, later
// files (lexical order) overriding earlier ones per interface. It also
// returns the sorted file list so the caller can collapse the directory
// back into a single file.
func loadDir(dir string) (*Netplan, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, reconcile.WrapError(reconcile.KindPatchConflict, err, "read %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	merged := &Netplan{Network: Network{Version: 2, Ethernets: map[string]*Ethernet{}}}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, reconcile.WrapError(reconcile.KindPatchConflict, err, "read %s", f)
		}
		var np Netplan
		if err := yaml.Unmarshal(data, &np); err != nil {
			return nil, nil, reconcile.WrapError(reconcile.KindPatchConflict, err, "parse %s", f)
		}
		merged.merge(&np)
	}

	return merged, files, nil
}

func (n *Netplan) merge(other *Netplan) {
	if other.Network.Version != 0 {
		n.Network.Version = other.Network.Version
	}
	if other.Network.Renderer != "" {
		n.Network.Renderer = other.Network.Renderer
	}
	for name, eth := range other.Network.Ethernets {
		n.Network.Ethernets[name] = eth
	}
}

func (n *Netplan) setInterface(name string, cfg reconcile.InterfaceConfig) {
	eth := &Ethernet{
		Addresses: cfg.Addresses,
		Gateway4:  cfg.Gateway4,
	}
	if cfg.DHCP4 {
		v := true
		eth.DHCP4 = &v
	}
	if len(cfg.Nameservers) > 0 {
		eth.Nameservers = &Nameservers{Addresses: cfg.Nameservers}
	}
	n.Network.Ethernets[name] = eth
}

// save collapses the declaration into the lexically first file of the
// previous set (or a default name) and removes the other files, so the
// next load sees exactly one source of truth. The write is atomic.
func (n *Netplan) save(dir string, prev []string) (bool, error) {
	data, err := yaml.Marshal(n)
	if err != nil {
		return false, reconcile.WrapError(reconcile.KindPatchConflict, err, "marshal netplan config")
	}

	primary := filepath.Join(dir, defaultFileName)
	if len(prev) > 0 {
		primary = prev[0]
	}

	changed := len(prev) != 1
	if !changed {
		current, err := os.ReadFile(primary)
		if err != nil || string(current) != string(data) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	// Secondary files go first: their content is already captured in the
	// merged declaration, and an interrupted collapse must never leave
	// lexically-later files behind to override a freshly written primary
	// on the next load. Failing here leaves the primary untouched.
	if len(prev) > 1 {
		for _, f := range prev[1:] {
			if err := os.Remove(f); err != nil {
				return false, reconcile.WrapError(reconcile.KindPatchConflict, err, "remove %s", f)
			}
		}
	}

	if err := patcher.WriteAtomic(primary, string(data)); err != nil {
		return false, err
	}
	return true, nil
}

func (n *Netplan) String() string {
	data, err := yaml.Marshal(n)
	if err != nil {
		return fmt.Sprintf("netplan marshal error: %v", err)
	}
	return string(data)
}
