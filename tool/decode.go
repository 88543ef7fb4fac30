package tool

import "github.com/mitchellh/mapstructure"

// Decode maps a tool call's loosely-typed arguments onto a typed struct,
// for tool implementations that would rather declare their own argument
// type than dig through map[string]any by hand. WeaklyTypedInput tolerates
// a provider sending "3" where an int is expected, which real providers do.
func Decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

// DecodeOrFail is Decode under the name a PlainFunc/ContextualFunc body
// calls it by. A decode failure comes back as a plain error, which the
// dispatcher classifies as ErrorException; the dispatcher classifies a
// failure as ErrorValidation only when the tool returns it wrapped in a
// *ValidationError.
func DecodeOrFail(args map[string]any, out any) error {
	return Decode(args, out)
}

// ValidationError wraps msg as an argument-validation failure, for a tool
// implementation to return when it wants the dispatcher to classify the
// failure as ErrorValidation rather than the default ErrorException.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }
