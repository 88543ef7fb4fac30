// Package prompt is the Prompt/skills composition component (spec.md §4
// overview row "Prompt/skills composition"): it builds the system prompt an
// Agent Loop run sends as the thread's system message from the agent's
// purpose/notes, the currently registered tool set, AGENTS.md project
// instructions, and skill metadata.
//
// Grounded on original_source's packages/tyler/tyler/models/agent_prompt.py
// AgentPrompt.system_template (kept near-verbatim, translated to a Go
// text/template) and tests/models/test_agents_md.py for the
// <project_instructions>/<available_skills> tag ordering and presence
// rules.
package prompt

import (
	"strings"
	"text/template"
	"time"

	"github.com/kadirpekel/loom/tool"
)

// systemTemplate mirrors AgentPrompt.system_template's structure and section
// ordering: agent identity/purpose/notes, the operational routine, tool
// usage guidance, and file-handling instructions.
const systemTemplate = `<agent_overview>
# Agent Identity
Your name is {{.Name}} and you are a {{.ModelName}} powered AI agent that can converse, answer questions, and when necessary, use tools to perform tasks.

Current date: {{.CurrentDate}}

# Core Purpose
Your purpose is:
` + "```" + `
{{.Purpose}}
` + "```" + `

# Supporting Notes
Here are some relevant notes to help you accomplish your purpose:
` + "```" + `
{{.Notes}}
` + "```" + `
</agent_overview>

<operational_routine>
# Operational Routine
Based on the user's input, follow this routine:
1. If the user makes a statement or shares information, respond appropriately with acknowledgment.
2. If the user's request is vague, incomplete, or missing information needed to complete the task, use the relevant notes to understand the user's request. If you don't find an answer in the notes, ask probing questions to understand the user's request deeper. You can ask a maximum of 3 probing questions.
3. If the request requires gathering information or performing actions beyond your knowledge you can use the tools available to you.
</operational_routine>

<tool_usage_guidelines>
# Tool Usage Guidelines

## Available Tools
You have access to the following tools:
{{.ToolsDescription}}
</tool_usage_guidelines>

<file_handling_instructions>
# File Handling Instructions
Both user messages and tool responses may contain file attachments.

File attachments are included in the message content in this format:
` + "```" + `
[File: files/path/to/file.ext (mime/type)]
` + "```" + `

When referencing files in your responses, always use the exact file path as shown in the file reference.
</file_handling_instructions>`

var tmpl = template.Must(template.New("system").Parse(systemTemplate))

type templateData struct {
	Name             string
	ModelName        string
	CurrentDate      string
	Purpose          string
	Notes            string
	ToolsDescription string
}

// Composer is the Prompt Composer: spec.md §4's agentloop.PromptComposer
// implementation. It is immutable after construction except for the
// AGENTS.md / skills blocks, which callers set once through the
// ProjectInstructions and SkillsBlock fields — the Agent
// Loop calls Compose fresh on every tool-set change, so there is no other
// mutable state to guard.
type Composer struct {
	Name      string
	ModelName string
	Purpose   string
	Notes     string

	// ProjectInstructions is the <project_instructions> block's body, empty
	// when agents_md wasn't configured (spec.md §3: "AGENTS.md ... present
	// in the system prompt when configured").
	ProjectInstructions string

	// SkillsBlock is the <available_skills> block's body, empty when no
	// skills were loaded.
	SkillsBlock string

	// now is overridable for deterministic tests; defaults to time.Now.
	now func() time.Time
}

// New returns a Composer with no AGENTS.md/skills content; callers attach
// set the ProjectInstructions and SkillsBlock fields before first use.
func New(name, modelName, purpose, notes string) *Composer {
	return &Composer{Name: name, ModelName: modelName, Purpose: purpose, Notes: notes, now: time.Now}
}

// Compose renders the full system prompt for the current tool set, matching
// spec.md §9's "regenerated only when the tool set or skills change"
// contract — the Agent Loop decides when to call this, Composer just
// renders whatever it's given.
func (c *Composer) Compose(tools []tool.Declaration) (string, error) {
	nowFn := c.now
	if nowFn == nil {
		nowFn = time.Now
	}

	var b strings.Builder
	data := templateData{
		Name:             c.Name,
		ModelName:        c.ModelName,
		CurrentDate:      nowFn().Format("2006-01-02 Monday"),
		Purpose:          c.Purpose,
		Notes:            c.Notes,
		ToolsDescription: describeTools(tools),
	}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}

	out := b.String()
	if c.ProjectInstructions != "" {
		out += "\n\n<project_instructions>\n" + c.ProjectInstructions + "\n</project_instructions>"
	}
	if c.SkillsBlock != "" {
		out += "\n\n<available_skills>\n" + c.SkillsBlock + "\n</available_skills>"
	}
	return out, nil
}

func describeTools(tools []tool.Declaration) string {
	if len(tools) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	for _, t := range tools {
		b.WriteString("- `")
		b.WriteString(t.Name)
		b.WriteString("`: ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
