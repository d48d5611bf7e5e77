// Package patcher performs idempotent line edits on managed system
// configuration files. Each managed file has one statically enumerated
// Target with a fixed patch policy; nothing here accepts caller-built
// paths. Writes are atomic: full content is built in memory, written to a
// temp file in the same directory and renamed over the original.
package patcher

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

// Marker tags broker-authored lines so they can be told apart from
// user-added lines with the same shape.
const Marker = "# roxy"

type Policy string

const (
	// AppendUniqueKeyedLine replaces the line whose first field equals the
	// key, or appends when no such line exists.
	AppendUniqueKeyedLine Policy = "append-unique-keyed-line"
	// ReplaceLineElseAppend replaces the last line with the given prefix
	// in place, preserving its position, or appends at the end.
	ReplaceLineElseAppend Policy = "replace-matching-line-else-append"
	// DeleteMatchingThenAppend removes every line matching a deletion
	// prefix, then ensures the desired broker-marked lines at the end.
	DeleteMatchingThenAppend Policy = "delete-all-matching-pattern-then-append"
	// AppendKeyedRemoteTarget keys remote-logging lines by their target
	// address: same key is replaced in place, a new key is appended.
	AppendKeyedRemoteTarget Policy = "append-keyed-remote-target"
)

type Target struct {
	Path   string
	Policy Policy
}

// Spec is the desired outcome of one patch. Which fields apply depends on
// the target's policy.
type Spec struct {
	// Key is the identifying first field (AppendUniqueKeyedLine) or the
	// remote target address (AppendKeyedRemoteTarget).
	Key string
	// Prefix selects the line to replace for ReplaceLineElseAppend.
	Prefix string
	// Line is the full desired line for the single-line policies.
	Line string
	// DeletePrefixes select lines to purge for DeleteMatchingThenAppend.
	DeletePrefixes []string
	// Lines are the desired lines for DeleteMatchingThenAppend; the
	// broker marker is appended to each.
	Lines []string
}

type Patcher struct {
	logger *slog.Logger
}

func New() *Patcher {
	return &Patcher{logger: logger.Component(logger.Patcher)}
}

// Apply patches target toward spec and reports whether the file content
// actually changed. An unchanged file is never rewritten.
func (p *Patcher) Apply(target Target, spec Spec) (bool, error) {
	data, err := os.ReadFile(target.Path)
	if err != nil {
		return false, reconcile.WrapError(reconcile.KindPatchConflict, err, "read %s", target.Path)
	}
	if !utf8.Valid(data) || bytes.ContainsRune(data, 0) {
		return false, reconcile.NewError(reconcile.KindPatchConflict, "%s is not a text file", target.Path)
	}

	lines := splitLines(string(data))

	var patched []string
	switch target.Policy {
	case AppendUniqueKeyedLine:
		patched = appendUniqueKeyed(lines, spec.Key, spec.Line)
	case ReplaceLineElseAppend:
		patched = replaceElseAppend(lines, spec.Prefix, spec.Line)
	case DeleteMatchingThenAppend:
		patched = deleteThenAppend(lines, spec.DeletePrefixes, spec.Lines)
	case AppendKeyedRemoteTarget:
		patched = appendKeyedRemote(lines, spec.Key, spec.Line)
	default:
		return false, reconcile.NewError(reconcile.KindPatchConflict, "unknown patch policy %q", target.Policy)
	}

	content := joinLines(patched)
	if content == string(data) {
		p.logger.Debug("No change needed", "path", target.Path)
		return false, nil
	}

	if err := WriteAtomic(target.Path, content); err != nil {
		return false, err
	}

	p.logger.Info("Patched file", "path", target.Path, "policy", string(target.Policy))
	return true, nil
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func appendUniqueKeyed(lines []string, key, desired string) []string {
	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if !replaced && len(fields) > 0 && fields[0] == key {
			out = append(out, desired)
			replaced = true
			continue
		}
		out = append(out, line)
	}
	if !replaced {
		out = append(out, desired)
	}
	return out
}

func replaceElseAppend(lines []string, prefix, desired string) []string {
	last := -1
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			last = i
		}
	}
	if last < 0 {
		return append(append([]string{}, lines...), desired)
	}
	out := append([]string{}, lines...)
	out[last] = desired
	return out
}

func deleteThenAppend(lines []string, deletePrefixes, desired []string) []string {
	out := make([]string, 0, len(lines)+len(desired))
	for _, line := range lines {
		if matchesAny(line, deletePrefixes) {
			continue
		}
		out = append(out, line)
	}
	for _, line := range desired {
		out = append(out, line+" "+Marker)
	}
	return out
}

func matchesAny(line string, prefixes []string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func appendKeyedRemote(lines []string, key, desired string) []string {
	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if remoteTargetKey(line) == key && !replaced {
			out = append(out, desired)
			replaced = true
			continue
		}
		out = append(out, line)
	}
	if !replaced {
		out = append(out, desired)
	}
	return out
}

// remoteTargetKey extracts the "host:port" key from an rsyslog remote
// line such as "user.* @@192.168.0.2:7500". Comments and lines without a
// remote marker have no key.
func remoteTargetKey(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	idx := strings.LastIndex(trimmed, "@")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(trimmed[idx+1:])
}

// WriteAtomic replaces path with content via a temp file in the same
// directory and a rename, so a concurrent reader or a crash can only ever
// observe the old or the new content. The original file mode is kept.
func WriteAtomic(path, content string) error {
	dir := filepath.Dir(path)

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return reconcile.WrapError(reconcile.KindPatchConflict, err, "rename over %s", path)
	}
	return nil
}
