package agentloop

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/loom/tool"
)

// outputToolName is the synthetic tool name convention spec.md §4.6 step 1
// calls for.
const outputToolName = "__final_answer__"

// outputCapture is the per-call slot a structured-output tool's
// implementation stores its arguments into, per the "scoped handle" design
// note (spec.md §9): registered for the duration of one execute call and
// always removed on every exit path.
type outputCapture struct {
	mu       sync.Mutex
	args     map[string]any
	got      bool
	required []string
}

func (c *outputCapture) store(args map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.args = args
	c.got = true
}

func (c *outputCapture) take() (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args, c.got
}

// schemaFor derives a JSON Schema map for responseType via reflection,
// grounded on spec.md §4.6 step 1's "parameter schema is the JSON schema of
// the target structured type". Every top-level field is marked required
// (mirroring the strict-function-calling convention the teacher's own
// output-tool schemas follow): a model that omits a field should fail
// validation and retry rather than silently receive zero values, matching
// spec.md end-to-end scenario 4.
func schemaFor(responseType any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(responseType)
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("agentloop: marshal response schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("agentloop: decode response schema: %w", err)
	}
	if props, ok := out["properties"].(map[string]any); ok {
		required := make([]string, 0, len(props))
		for name := range props {
			required = append(required, name)
		}
		sort.Strings(required)
		out["required"] = required
	}
	return out, nil
}

// requiredFields extracts the top-level "required" list a schema built by
// schemaFor always carries.
func requiredFields(schema map[string]any) []string {
	raw, _ := schema["required"].([]string)
	if raw != nil {
		return raw
	}
	anySlice, _ := schema["required"].([]any)
	out := make([]string, 0, len(anySlice))
	for _, v := range anySlice {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// registerOutputTool synthesizes and registers the output tool described in
// spec.md §4.6 step 1, returning a release func that must be called on
// every execute exit path.
func registerOutputTool(r *tool.Registry, responseType any) (*outputCapture, func(), error) {
	schema, err := schemaFor(responseType)
	if err != nil {
		return nil, nil, err
	}

	capture := &outputCapture{required: requiredFields(schema)}
	impl := tool.PlainFunc(func(args map[string]any) (string, error) {
		capture.store(args)
		return "structured output recorded", nil
	})

	decl := tool.Declaration{
		Name:        outputToolName,
		Description: "Call this with your final structured answer once you are done.",
		Parameters:  schema,
		Source:      "structured-output",
	}
	if err := r.Register(decl, impl); err != nil {
		return nil, nil, err
	}
	return capture, func() { r.Remove(outputToolName) }, nil
}

// decodeStructured decodes captured arguments into a fresh value of
// responseType's underlying type, first checking that every field schemaFor
// marked required is present in args (spec.md end-to-end scenario 4: a
// turn-1 call missing fields must fail validation, not silently decode to
// zero values), then validating the decode itself came through cleanly via
// mapstructure. Returns any errors flattened to strings for spec.md §4.6
// step 6's "validation errors" list.
func decodeStructured(responseType any, args map[string]any, required []string) (any, []string) {
	var missing []string
	for _, name := range required {
		if _, ok := args[name]; !ok {
			missing = append(missing, fmt.Sprintf("missing required field %q", name))
		}
	}
	if len(missing) > 0 {
		return nil, missing
	}

	out := newLike(responseType)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      false,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return nil, []string{err.Error()}
	}
	if err := decoder.Decode(args); err != nil {
		if merr, ok := err.(*mapstructure.Error); ok {
			return nil, merr.Errors
		}
		return nil, []string{err.Error()}
	}
	return out, nil
}
