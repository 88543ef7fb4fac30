package prompt

import (
	"os"
	"path/filepath"
	"strings"
)

// MaxAgentsMDSize caps the combined size of loaded AGENTS.md content,
// grounded on original_source's MAX_AGENTS_MD_SIZE (tests/models/
// test_agents_md.py's TestLoading.test_load_truncation).
const MaxAgentsMDSize = 64 * 1024

// DiscoverAgentsMD walks upward from dir to the filesystem root, collecting
// every AGENTS.md found along the way, root-first (spec.md §3's
// "agents_md: true for auto-discovery"). Grounded on
// tests/models/test_agents_md.py's TestDiscovery, including its root-first,
// closest-last ordering.
func DiscoverAgentsMD(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil
	}

	var chain []string
	cur := abs
	for {
		candidate := filepath.Join(cur, "AGENTS.md")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			chain = append(chain, candidate)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	// chain was accumulated closest-first; reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// LoadAgentsMD implements spec.md §6's agents_md field: true triggers
// auto-discovery from baseDir, false/nil loads nothing, a string loads one
// file, and a []string loads several joined with a separator. A missing
// file is skipped rather than treated as an error (spec.md §8's boundary
// behaviors mirror this for MCP servers; AGENTS.md follows the same
// "missing input degrades silently" philosophy per
// tests/models/test_agents_md.py's test_load_missing_file_skipped).
func LoadAgentsMD(value any, baseDir string) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if !v {
			return ""
		}
		paths := DiscoverAgentsMD(baseDir)
		return loadAndJoin(paths)
	case string:
		return loadAndJoin([]string{v})
	case []string:
		return loadAndJoin(v)
	default:
		return ""
	}
}

func loadAndJoin(paths []string) string {
	var parts []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	joined := strings.Join(parts, "\n\n---\n\n")
	if len(joined) > MaxAgentsMDSize {
		joined = joined[:MaxAgentsMDSize]
	}
	return joined
}
