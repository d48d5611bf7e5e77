package hwinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeVersionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "version")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadParsesBothLines(t *testing.T) {
	path := writeVersionFile(t, "OS: OSBroker 2.4.1\nProduct: EdgeGate 7.0.2\n")

	info, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, Info{
		OSName:         "OSBroker",
		OSVersion:      "2.4.1",
		ProductName:    "EdgeGate",
		ProductVersion: "7.0.2",
	}, info)
}

func TestReadPrefixIsCaseInsensitive(t *testing.T) {
	path := writeVersionFile(t, "os: osbroker 1.0.0\nPRODUCT: edgegate 2.0.0\n")

	info, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "osbroker", info.OSName)
	require.Equal(t, "2.0.0", info.ProductVersion)
}

func TestReadIgnoresUnrelatedLines(t *testing.T) {
	path := writeVersionFile(t, "# build metadata\nOS: OSBroker 2.4.1\nKernel: 6.8.0\n")

	info, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "OSBroker", info.OSName)
	require.Empty(t, info.ProductName)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestReadNameWithSpaces(t *testing.T) {
	path := writeVersionFile(t, "Product: Edge Gate Pro 3.1.4\n")

	info, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "Edge Gate Pro", info.ProductName)
	require.Equal(t, "3.1.4", info.ProductVersion)
}
