package patcher

import "fmt"

// Managed files. One Target per file, fixed at compile time; the gate
// never constructs targets from request data.
var (
	NtpConf = Target{
		Path:   "/etc/ntp.conf",
		Policy: DeleteMatchingThenAppend,
	}
	SshdConfig = Target{
		Path:   "/etc/ssh/sshd_config",
		Policy: ReplaceLineElseAppend,
	}
	RsyslogRemote = Target{
		Path:   "/etc/rsyslog.d/50-default.conf",
		Policy: AppendKeyedRemoteTarget,
	}
)

// ntpDeletePrefixes purge vendor-default pool entries and previous server
// lines, including the broker's own (it is re-added with the marker).
var ntpDeletePrefixes = []string{"server ", "pool "}

func NtpSpec(servers []string) Spec {
	lines := make([]string, 0, len(servers))
	for _, s := range servers {
		lines = append(lines, fmt.Sprintf("server %s iburst", s))
	}
	return Spec{
		DeletePrefixes: ntpDeletePrefixes,
		Lines:          lines,
	}
}

func SshPortSpec(port uint16) Spec {
	return Spec{
		Prefix: "Port ",
		Line:   fmt.Sprintf("Port %d", port),
	}
}

// syslogFacility is fixed; the remote target is the line's key.
const syslogFacility = "user.*"

func SyslogSpec(target, protocol string) Spec {
	prefix := "@"
	if protocol == "tcp" {
		prefix = "@@"
	}
	return Spec{
		Key:  target,
		Line: fmt.Sprintf("%s %s%s", syslogFacility, prefix, target),
	}
}
