package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kadirpekel/loom/tool"
)

func TestComposeIncludesToolsAndPurpose(t *testing.T) {
	c := New("Ava", "gpt-5", "help the user", "be concise")
	out, err := c.Compose([]tool.Declaration{
		{Name: "search", Description: "search the web"},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for _, want := range []string{"Ava", "gpt-5", "help the user", "be concise", "`search`: search the web"} {
		if !strings.Contains(out, want) {
			t.Errorf("Compose() missing %q in:\n%s", want, out)
		}
	}
}

func TestComposeNoToolsPlaceholder(t *testing.T) {
	c := New("Ava", "gpt-5", "p", "n")
	out, err := c.Compose(nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(out, "No tools available.") {
		t.Errorf("expected no-tools placeholder, got:\n%s", out)
	}
}

func TestComposeProjectInstructionsBeforeSkills(t *testing.T) {
	c := New("Ava", "gpt-5", "p", "n")
	c.ProjectInstructions = "Always use type hints."
	c.SkillsBlock = "- `pdf`: reads pdfs"

	out, err := c.Compose(nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	pi := strings.Index(out, "<project_instructions>")
	as := strings.Index(out, "<available_skills>")
	if pi == -1 || as == -1 || pi > as {
		t.Fatalf("expected <project_instructions> before <available_skills>, got:\n%s", out)
	}
}

func TestComposeNoBlocksWhenEmpty(t *testing.T) {
	c := New("Ava", "gpt-5", "p", "n")
	out, err := c.Compose(nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(out, "<project_instructions>") || strings.Contains(out, "<available_skills>") {
		t.Errorf("expected no instruction/skill blocks by default, got:\n%s", out)
	}
}

func TestDiscoverAgentsMDRootFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "AGENTS.md"), "1")
	a := filepath.Join(root, "a")
	mkdir(t, a)
	writeFile(t, filepath.Join(a, "AGENTS.md"), "2")
	b := filepath.Join(a, "b")
	mkdir(t, b)
	writeFile(t, filepath.Join(b, "AGENTS.md"), "3")

	found := DiscoverAgentsMD(b)
	if len(found) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(found), found)
	}
	if found[0] != filepath.Join(root, "AGENTS.md") {
		t.Errorf("expected root-first ordering, got %v", found)
	}
	if found[2] != filepath.Join(b, "AGENTS.md") {
		t.Errorf("expected closest-last ordering, got %v", found)
	}
}

func TestLoadAgentsMDVariants(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AGENTS.md"), "Auto-discovered content")

	if got := LoadAgentsMD(nil, dir); got != "" {
		t.Errorf("nil should load nothing, got %q", got)
	}
	if got := LoadAgentsMD(false, dir); got != "" {
		t.Errorf("false should load nothing, got %q", got)
	}
	if got := LoadAgentsMD(true, dir); !strings.Contains(got, "Auto-discovered content") {
		t.Errorf("true should auto-discover, got %q", got)
	}

	fileA := filepath.Join(dir, "A.md")
	fileB := filepath.Join(dir, "B.md")
	writeFile(t, fileA, "File A")
	writeFile(t, fileB, "File B")
	got := LoadAgentsMD([]string{fileA, fileB}, dir)
	if !strings.Contains(got, "File A") || !strings.Contains(got, "File B") || !strings.Contains(got, "---") {
		t.Errorf("expected both files joined with separator, got %q", got)
	}
}

func TestLoadAgentsMDMissingFileSkipped(t *testing.T) {
	dir := t.TempDir()
	got := LoadAgentsMD(filepath.Join(dir, "nonexistent.md"), dir)
	if got != "" {
		t.Errorf("expected empty string for missing file, got %q", got)
	}
}

func TestLoadSkillsAndActivate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "---\nname: pdf-reader\ndescription: Reads PDFs\n---\nFull instructions here.")

	skills, err := LoadSkills([]string{dir})
	if err != nil {
		t.Fatalf("LoadSkills: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "pdf-reader" {
		t.Fatalf("unexpected skills: %+v", skills)
	}

	block := FormatSkillsBlock(skills)
	if !strings.Contains(block, "pdf-reader") || !strings.Contains(block, "Reads PDFs") {
		t.Errorf("unexpected skills block: %q", block)
	}

	reg := tool.NewRegistry(0)
	if err := RegisterActivateSkill(reg, skills); err != nil {
		t.Fatalf("RegisterActivateSkill: %v", err)
	}
	entry, ok := reg.Get("activate_skill")
	if !ok {
		t.Fatal("expected activate_skill to be registered")
	}
	_ = entry
}

func TestLoadSkillsRejectsInvalidName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "---\nname: Not_Valid\ndescription: x\n---\nbody")
	if _, err := LoadSkills([]string{dir}); err == nil {
		t.Fatal("expected error for invalid skill name")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
