// Package reconcile defines the request/result contract between a manager
// and the privileged broker. Requests are strongly typed per operation;
// free-form strings never reach a command line.
package reconcile

import "github.com/google/uuid"

type Operation string

const (
	OpApplyNetworkConfig    Operation = "apply_network_config"
	OpSetNtpServer          Operation = "set_ntp_server"
	OpSetSshPort            Operation = "set_ssh_port"
	OpSetRemoteSyslogTarget Operation = "set_remote_syslog_target"
	OpControlService        Operation = "control_service"
	OpToggleFirewall        Operation = "toggle_firewall"
)

// Operations is the closed set of permitted operations. Anything outside
// this set is rejected before any side effect.
var Operations = map[Operation]bool{
	OpApplyNetworkConfig:    true,
	OpSetNtpServer:          true,
	OpSetSshPort:            true,
	OpSetRemoteSyslogTarget: true,
	OpControlService:        true,
	OpToggleFirewall:        true,
}

type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionStatus  Action = "status"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// Request carries exactly one operation with its typed parameters. The
// parameter struct matching Operation must be set; all others must be nil.
type Request struct {
	ID        string    `json:"id" cbor:"id"`
	Operation Operation `json:"operation" cbor:"operation"`

	// Requester is an opaque principal recorded for audit logging. It is
	// never interpolated into a command line or file content.
	Requester string `json:"requester,omitempty" cbor:"requester,omitempty"`

	Network  *NetworkParams  `json:"network,omitempty" cbor:"network,omitempty"`
	Ntp      *NtpParams      `json:"ntp,omitempty" cbor:"ntp,omitempty"`
	SshPort  *SshPortParams  `json:"ssh_port,omitempty" cbor:"ssh_port,omitempty"`
	Syslog   *SyslogParams   `json:"syslog,omitempty" cbor:"syslog,omitempty"`
	Service  *ServiceParams  `json:"service,omitempty" cbor:"service,omitempty"`
	Firewall *FirewallParams `json:"firewall,omitempty" cbor:"firewall,omitempty"`
}

// NewRequest assigns a fresh request ID. The caller fills in the parameter
// struct for op before submitting.
func NewRequest(op Operation, requester string) Request {
	return Request{
		ID:        uuid.NewString(),
		Operation: op,
		Requester: requester,
	}
}

// InterfaceConfig is the desired state of one network interface.
type InterfaceConfig struct {
	DHCP4       bool     `json:"dhcp4,omitempty" cbor:"dhcp4,omitempty"`
	Addresses   []string `json:"addresses,omitempty" cbor:"addresses,omitempty"`
	Gateway4    string   `json:"gateway4,omitempty" cbor:"gateway4,omitempty"`
	Nameservers []string `json:"nameservers,omitempty" cbor:"nameservers,omitempty"`
}

type NetworkParams struct {
	Interfaces map[string]InterfaceConfig `json:"interfaces" cbor:"interfaces"`
}

type NtpParams struct {
	Servers []string `json:"servers" cbor:"servers"`
}

type SshPortParams struct {
	Port uint16 `json:"port" cbor:"port"`
}

type SyslogParams struct {
	// Target is the remote destination as "host:port".
	Target string `json:"target" cbor:"target"`
	// Protocol is "tcp" or "udp".
	Protocol string `json:"protocol" cbor:"protocol"`
}

type ServiceParams struct {
	Name   string `json:"name" cbor:"name"`
	Action Action `json:"action" cbor:"action"`
}

type FirewallParams struct {
	Action Action `json:"action" cbor:"action"`
}
