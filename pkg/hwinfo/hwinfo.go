// Package hwinfo reads the appliance identity file. The file is
// consulted read-only; nothing in the broker writes it.
package hwinfo

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const DefaultVersionFile = "/etc/version"

// Info is the OS and product identity of the appliance, as recorded in
// the version file by the image build.
type Info struct {
	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	ProductName    string `json:"product_name"`
	ProductVersion string `json:"product_version"`
}

// Read parses "OS:" and "Product:" lines from path. Prefix matching is
// case-insensitive; each value is "<name> <version>" with the version
// being the last space-separated field. Lines that match neither prefix
// are ignored.
func Read(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open version file: %w", err)
	}
	defer f.Close()

	var info Info
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "os:"):
			info.OSName, info.OSVersion = splitNameVersion(line[len("os:"):])
		case strings.HasPrefix(lower, "product:"):
			info.ProductName, info.ProductVersion = splitNameVersion(line[len("product:"):])
		}
	}
	if err := scanner.Err(); err != nil {
		return Info{}, fmt.Errorf("read version file: %w", err)
	}
	return info, nil
}

func splitNameVersion(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return s, ""
	}
	return strings.TrimSpace(s[:idx]), s[idx+1:]
}
