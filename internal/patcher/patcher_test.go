package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aicers/roxy/pkg/reconcile"
	"github.com/stretchr/testify/require"
)

func writeTarget(t *testing.T, policy Policy, content string) Target {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return Target{Path: path, Policy: policy}
}

func readBack(t *testing.T, target Target) string {
	t.Helper()
	data, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	return string(data)
}

func TestSshPortReplaceInPlace(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend,
		"# sshd config\nPort 22\nPermitRootLogin no\n")

	changed, err := New().Apply(target, SshPortSpec(2022))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "# sshd config\nPort 2022\nPermitRootLogin no\n", readBack(t, target))
}

func TestSshPortAppendWhenMissing(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "PermitRootLogin no\n")

	changed, err := New().Apply(target, SshPortSpec(2022))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "PermitRootLogin no\nPort 2022\n", readBack(t, target))
}

func TestSshPortReplacesLastMatch(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "Port 22\nPort 23\n")

	changed, err := New().Apply(target, SshPortSpec(2022))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "Port 22\nPort 2022\n", readBack(t, target))
}

func TestSshPortIdempotent(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "Port 22\n")
	p := New()

	changed, err := p.Apply(target, SshPortSpec(2022))
	require.NoError(t, err)
	require.True(t, changed)
	first := readBack(t, target)

	changed, err = p.Apply(target, SshPortSpec(2022))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, first, readBack(t, target))
}

func TestNtpPurgesDefaultPools(t *testing.T) {
	target := writeTarget(t, DeleteMatchingThenAppend,
		"driftfile /var/lib/ntp/ntp.drift\n"+
			"pool 0.ubuntu.pool.ntp.org iburst\n"+
			"pool 1.ubuntu.pool.ntp.org iburst\n"+
			"pool 2.ubuntu.pool.ntp.org iburst\n"+
			"restrict -4 default kod notrap nomodify nopeer noquery limited\n")

	changed, err := New().Apply(target, NtpSpec([]string{"time.example.com"}))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t,
		"driftfile /var/lib/ntp/ntp.drift\n"+
			"restrict -4 default kod notrap nomodify nopeer noquery limited\n"+
			"server time.example.com iburst "+Marker+"\n",
		readBack(t, target))
}

func TestNtpReplacesOwnPreviousEntry(t *testing.T) {
	target := writeTarget(t, DeleteMatchingThenAppend,
		"server old.example.com iburst "+Marker+"\n")
	p := New()

	changed, err := p.Apply(target, NtpSpec([]string{"new.example.com"}))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "server new.example.com iburst "+Marker+"\n", readBack(t, target))

	changed, err = p.Apply(target, NtpSpec([]string{"new.example.com"}))
	require.NoError(t, err)
	require.False(t, changed)
}

func TestNtpKeepsUnrelatedLines(t *testing.T) {
	target := writeTarget(t, DeleteMatchingThenAppend,
		"driftfile /var/lib/ntp/ntp.drift\n# local comment\nbroadcastclient\n")

	_, err := New().Apply(target, NtpSpec([]string{"s1", "s2"}))
	require.NoError(t, err)
	require.Equal(t,
		"driftfile /var/lib/ntp/ntp.drift\n# local comment\nbroadcastclient\n"+
			"server s1 iburst "+Marker+"\nserver s2 iburst "+Marker+"\n",
		readBack(t, target))
}

func TestSyslogAppendsDifferentKey(t *testing.T) {
	target := writeTarget(t, AppendKeyedRemoteTarget,
		"user.* @@192.168.0.2:7500\n")

	changed, err := New().Apply(target, SyslogSpec("192.168.0.3:500", "udp"))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t,
		"user.* @@192.168.0.2:7500\nuser.* @192.168.0.3:500\n",
		readBack(t, target))
}

func TestSyslogReplacesSameKey(t *testing.T) {
	target := writeTarget(t, AppendKeyedRemoteTarget,
		"# comments stay\nuser.* @192.168.0.3:500\n*.emerg :omusrmsg:*\n")

	changed, err := New().Apply(target, SyslogSpec("192.168.0.3:500", "tcp"))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t,
		"# comments stay\nuser.* @@192.168.0.3:500\n*.emerg :omusrmsg:*\n",
		readBack(t, target))
}

func TestSyslogIdempotent(t *testing.T) {
	target := writeTarget(t, AppendKeyedRemoteTarget, "")
	p := New()

	changed, err := p.Apply(target, SyslogSpec("10.0.0.9:514", "tcp"))
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = p.Apply(target, SyslogSpec("10.0.0.9:514", "tcp"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "user.* @@10.0.0.9:514\n", readBack(t, target))
}

func TestAppendUniqueKeyedLine(t *testing.T) {
	target := writeTarget(t, AppendUniqueKeyedLine, "keyA 1\nkeyB 2\n")
	p := New()

	changed, err := p.Apply(target, Spec{Key: "keyB", Line: "keyB 9"})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "keyA 1\nkeyB 9\n", readBack(t, target))

	changed, err = p.Apply(target, Spec{Key: "keyC", Line: "keyC 3"})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "keyA 1\nkeyB 9\nkeyC 3\n", readBack(t, target))
}

func TestBinaryContentIsConflict(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "Port 22\x00garbage")

	_, err := New().Apply(target, SshPortSpec(22))
	require.Error(t, err)
	require.Equal(t, reconcile.KindPatchConflict, reconcile.KindOf(err))
	// the file is untouched
	require.Equal(t, "Port 22\x00garbage", readBack(t, target))
}

func TestMissingFileIsConflict(t *testing.T) {
	target := Target{Path: filepath.Join(t.TempDir(), "absent"), Policy: ReplaceLineElseAppend}

	_, err := New().Apply(target, SshPortSpec(22))
	require.Equal(t, reconcile.KindPatchConflict, reconcile.KindOf(err))
}

func TestApplyLeavesNoTempFiles(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "Port 22\n")
	_, err := New().Apply(target, SshPortSpec(2022))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(target.Path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestApplyPreservesFileMode(t *testing.T) {
	target := writeTarget(t, ReplaceLineElseAppend, "Port 22\n")
	require.NoError(t, os.Chmod(target.Path, 0o600))

	_, err := New().Apply(target, SshPortSpec(2022))
	require.NoError(t, err)

	info, err := os.Stat(target.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
