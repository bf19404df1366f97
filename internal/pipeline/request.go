package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZacharyZcR/QWordPatch/internal/pe"
)

// ParsePairs converts the flattened CLI arguments into patch pairs. The
// values are 64-bit hexadecimal words; an odd count is a usage error.
// Pairs keep their argument order, which is also their match priority.
func ParsePairs(args []string) ([]pe.PatchPair, error) {
	if len(args)%2 != 0 {
		return nil, ErrOddValueCount
	}

	pairs := make([]pe.PatchPair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		original, err := parseQword(args[i])
		if err != nil {
			return nil, err
		}
		replacement, err := parseQword(args[i+1])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pe.PatchPair{Original: original, Replacement: replacement})
	}
	return pairs, nil
}

func parseQword(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid 64-bit hex value %q: %w", s, err)
	}
	return v, nil
}

// Manifest is the YAML patch-list format:
//
//	patches:
//	  - original: "48C7C001000000C3"
//	    replacement: "48C7C000000000C3"
type Manifest struct {
	Patches []ManifestEntry `yaml:"patches"`
}

// ManifestEntry is one original/replacement pair, hex-encoded.
type ManifestEntry struct {
	Original    string `yaml:"original"`
	Replacement string `yaml:"replacement"`
}

// LoadManifest reads patch pairs from a YAML file, preserving their order.
func LoadManifest(path string) ([]pe.PatchPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse patch file: %w", err)
	}

	pairs := make([]pe.PatchPair, 0, len(m.Patches))
	for i, entry := range m.Patches {
		original, err := parseQword(entry.Original)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i+1, err)
		}
		replacement, err := parseQword(entry.Replacement)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i+1, err)
		}
		pairs = append(pairs, pe.PatchPair{Original: original, Replacement: replacement})
	}
	return pairs, nil
}
