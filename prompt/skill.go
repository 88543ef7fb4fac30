package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/loom/tool"
)

// Per the Agent Skills open format (agentskills.io): a skill is a directory
// containing SKILL.md with YAML frontmatter (name, description) and a
// markdown body. Grounded on original_source's
// packages/tyler/tyler/models/skill.py.
const (
	maxSkillNameLength        = 64
	maxSkillDescriptionLength = 1024
)

var skillNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Skill is one loaded SKILL.md: its metadata (surfaced in the system prompt)
// and its full body (loaded on demand via activate_skill — "progressive
// disclosure" per skill.py's module doc).
type Skill struct {
	Name        string
	Description string
	Path        string
	Content     string
	Metadata    map[string]any
}

// LoadSkills parses every path's SKILL.md into a Skill, validating name and
// description against the Agent Skills spec's constraints. A path whose
// SKILL.md is missing is skipped with no error, matching skill.py's
// `logger.warning(...); continue`.
func LoadSkills(paths []string) ([]Skill, error) {
	var skills []Skill
	for _, p := range paths {
		skillMD := filepath.Join(p, "SKILL.md")
		data, err := os.ReadFile(skillMD)
		if err != nil {
			continue
		}

		s, err := parseSkill(string(data), p)
		if err != nil {
			return nil, err
		}
		if err := validateSkill(s); err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, nil
}

func parseSkill(raw, dir string) (Skill, error) {
	parts := strings.SplitN(raw, "---", 3)
	if len(parts) < 3 {
		return Skill{}, fmt.Errorf("prompt: SKILL.md in %s is missing YAML frontmatter (expected --- delimiters)", dir)
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &frontmatter); err != nil {
		return Skill{}, fmt.Errorf("prompt: invalid YAML frontmatter in %s: %w", filepath.Join(dir, "SKILL.md"), err)
	}

	name, _ := frontmatter["name"].(string)
	description, _ := frontmatter["description"].(string)
	if name == "" {
		return Skill{}, fmt.Errorf("prompt: SKILL.md in %s is missing 'name' in frontmatter", dir)
	}
	if description == "" {
		return Skill{}, fmt.Errorf("prompt: SKILL.md in %s is missing 'description' in frontmatter", dir)
	}

	metadata := make(map[string]any, len(frontmatter))
	for k, v := range frontmatter {
		if k == "name" || k == "description" {
			continue
		}
		metadata[k] = v
	}

	return Skill{
		Name:        name,
		Description: description,
		Path:        dir,
		Content:     strings.TrimSpace(parts[2]),
		Metadata:    metadata,
	}, nil
}

func validateSkill(s Skill) error {
	if !skillNamePattern.MatchString(s.Name) {
		return fmt.Errorf("prompt: skill name %q is invalid; must be lowercase letters, numbers, and hyphens, starting with a letter or number", s.Name)
	}
	if len(s.Name) > maxSkillNameLength {
		return fmt.Errorf("prompt: skill name %q exceeds %d characters", s.Name, maxSkillNameLength)
	}
	if len(s.Description) > maxSkillDescriptionLength {
		return fmt.Errorf("prompt: skill description for %q exceeds %d characters", s.Name, maxSkillDescriptionLength)
	}
	return nil
}

// FormatSkillsBlock renders the <available_skills> block body: one bullet
// per skill naming and describing it, matching skill.py's
// format_skills_prompt.
func FormatSkillsBlock(skills []Skill) string {
	if len(skills) == 0 {
		return ""
	}
	lines := make([]string, len(skills))
	for i, s := range skills {
		lines[i] = fmt.Sprintf("- `%s`: %s", s.Name, s.Description)
	}
	return strings.Join(lines, "\n")
}

// RegisterActivateSkill registers the activate_skill tool into registry,
// whose implementation returns a skill's full body by name. Returns an
// error if a tool named "activate_skill" is already registered, matching
// skill.py's collision check.
func RegisterActivateSkill(registry *tool.Registry, skills []Skill) error {
	if len(skills) == 0 {
		return nil
	}
	if _, exists := registry.Get("activate_skill"); exists {
		return fmt.Errorf("prompt: cannot register skill tools: a tool named \"activate_skill\" is already registered")
	}

	byName := make(map[string]Skill, len(skills))
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		byName[s.Name] = s
		names = append(names, s.Name)
	}
	sort.Strings(names)

	impl := tool.PlainFunc(func(args map[string]any) (string, error) {
		name, _ := args["name"].(string)
		skill, ok := byName[name]
		if !ok {
			return fmt.Sprintf("Unknown skill %q. Available skills: %s", name, strings.Join(names, ", ")), nil
		}
		return skill.Content, nil
	})

	decl := tool.Declaration{
		Name:        "activate_skill",
		Description: "Activate a skill to load its full instructions. Use when a task matches an available skill.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "The name of the skill to activate. Available: " + strings.Join(names, ", "),
				},
			},
			"required": []string{"name"},
		},
		Source: "skills",
	}
	return registry.Register(decl, impl)
}
