package gate

import (
	"net/netip"
	"regexp"

	"github.com/aicers/roxy/internal/service"
	"github.com/aicers/roxy/pkg/reconcile"
)

var (
	ifaceNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,15}$`)
	hostNameRe  = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)
)

// validate checks structure and ranges before anything is locked,
// spawned or opened for writing. A failure here leaves the system
// untouched.
func validate(req *reconcile.Request) error {
	if !reconcile.Operations[req.Operation] {
		return reconcile.NewError(reconcile.KindInvalidRequest, "unknown operation %q", req.Operation)
	}

	switch req.Operation {
	case reconcile.OpApplyNetworkConfig:
		return validateNetwork(req.Network)
	case reconcile.OpSetNtpServer:
		return validateNtp(req.Ntp)
	case reconcile.OpSetSshPort:
		return validateSshPort(req.SshPort)
	case reconcile.OpSetRemoteSyslogTarget:
		return validateSyslog(req.Syslog)
	case reconcile.OpControlService:
		return validateService(req.Service)
	case reconcile.OpToggleFirewall:
		return validateFirewall(req.Firewall)
	}
	return reconcile.NewError(reconcile.KindInvalidRequest, "unhandled operation %q", req.Operation)
}

func validateNetwork(p *reconcile.NetworkParams) error {
	if p == nil || len(p.Interfaces) == 0 {
		return reconcile.NewError(reconcile.KindInvalidRequest, "network parameters missing")
	}
	for name, cfg := range p.Interfaces {
		if !ifaceNameRe.MatchString(name) {
			return reconcile.NewError(reconcile.KindInvalidRequest, "invalid interface name %q", name)
		}
		if cfg.DHCP4 && (len(cfg.Addresses) > 0 || cfg.Gateway4 != "" || len(cfg.Nameservers) > 0) {
			return reconcile.NewError(reconcile.KindInvalidRequest,
				"%s: dhcp4 and static settings are mutually exclusive", name)
		}
		for _, a := range cfg.Addresses {
			if _, err := netip.ParsePrefix(a); err != nil {
				return reconcile.NewError(reconcile.KindInvalidRequest, "%s: invalid address %q", name, a)
			}
		}
		if cfg.Gateway4 != "" {
			if _, err := netip.ParseAddr(cfg.Gateway4); err != nil {
				return reconcile.NewError(reconcile.KindInvalidRequest, "%s: invalid gateway %q", name, cfg.Gateway4)
			}
		}
		for _, ns := range cfg.Nameservers {
			if _, err := netip.ParseAddr(ns); err != nil {
				return reconcile.NewError(reconcile.KindInvalidRequest, "%s: invalid nameserver %q", name, ns)
			}
		}
	}
	return nil
}

func validateNtp(p *reconcile.NtpParams) error {
	if p == nil || len(p.Servers) == 0 {
		return reconcile.NewError(reconcile.KindInvalidRequest, "ntp servers missing")
	}
	for _, s := range p.Servers {
		if len(s) > 253 || !hostNameRe.MatchString(s) {
			return reconcile.NewError(reconcile.KindInvalidRequest, "invalid ntp server %q", s)
		}
	}
	return nil
}

func validateSshPort(p *reconcile.SshPortParams) error {
	if p == nil {
		return reconcile.NewError(reconcile.KindInvalidRequest, "ssh port missing")
	}
	if p.Port == 0 {
		return reconcile.NewError(reconcile.KindInvalidRequest, "ssh port must be in [1,65535]")
	}
	return nil
}

func validateSyslog(p *reconcile.SyslogParams) error {
	if p == nil {
		return reconcile.NewError(reconcile.KindInvalidRequest, "syslog parameters missing")
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return reconcile.NewError(reconcile.KindInvalidRequest, "invalid syslog protocol %q", p.Protocol)
	}
	ap, err := netip.ParseAddrPort(p.Target)
	if err != nil {
		return reconcile.NewError(reconcile.KindInvalidRequest, "invalid syslog target %q", p.Target)
	}
	if ap.Port() == 0 {
		return reconcile.NewError(reconcile.KindInvalidRequest, "invalid syslog target port in %q", p.Target)
	}
	return nil
}

func validateService(p *reconcile.ServiceParams) error {
	if p == nil {
		return reconcile.NewError(reconcile.KindInvalidRequest, "service parameters missing")
	}
	if !service.Known(p.Name) || p.Name == "ufw" {
		return reconcile.NewError(reconcile.KindInvalidRequest, "unknown service %q", p.Name)
	}
	switch p.Action {
	case reconcile.ActionStart, reconcile.ActionStop, reconcile.ActionStatus:
		return nil
	}
	return reconcile.NewError(reconcile.KindInvalidRequest, "invalid service action %q", p.Action)
}

func validateFirewall(p *reconcile.FirewallParams) error {
	if p == nil {
		return reconcile.NewError(reconcile.KindInvalidRequest, "firewall parameters missing")
	}
	switch p.Action {
	case reconcile.ActionEnable, reconcile.ActionDisable, reconcile.ActionStatus:
		return nil
	}
	return reconcile.NewError(reconcile.KindInvalidRequest, "invalid firewall action %q", p.Action)
}
