package descriptor

import (
	"fmt"
	"strings"
)

// Validator performs structural well-formedness checks on a descriptor.
// A failed validation is fatal for the stage that references the descriptor:
// no job is submitted for it.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(d *Descriptor) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	v.validateInputs(d, result)
	v.validateOutputs(d, result)
	v.validateCommandLine(d, result)

	return result
}

func (v *Validator) validateInputs(d *Descriptor, result *ValidationResult) {
	seen := make(map[string]int)

	for i, in := range d.Inputs {
		if in.ID == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("inputs[%d].id", i),
				Message: "input ID is empty",
			})
			continue
		}

		if prev, dup := seen[in.ID]; dup {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("inputs[%d].id", i),
				Message: fmt.Sprintf("duplicate input ID '%s' (first defined at inputs[%d])", in.ID, prev),
			})
		}
		seen[in.ID] = i

		switch in.Type {
		case InputString, InputNumber, InputFile, InputFlag:
		default:
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("inputs[%d].type", i),
				Message: fmt.Sprintf("unknown input type '%s'", in.Type),
			})
		}

		// Flag inputs bind through their command-line flag, everything else
		// through a value-key that must appear in the command line.
		if in.Type == InputFlag {
			if in.Flag == "" {
				result.Valid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   fmt.Sprintf("inputs[%d].command-line-flag", i),
					Message: "flag input has no command-line-flag",
				})
			}
			continue
		}

		if in.ValueKey == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("inputs[%d].value-key", i),
				Message: "input has no value-key",
			})
		} else if !strings.Contains(d.CommandLine, in.ValueKey) {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("inputs[%d].value-key", i),
				Message: fmt.Sprintf("value-key '%s' does not appear in command-line", in.ValueKey),
			})
		}
	}
}

func (v *Validator) validateOutputs(d *Descriptor, result *ValidationResult) {
	if len(d.OutputFiles) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   "output-files",
			Message: "no output files declared",
		})
		return
	}

	seen := make(map[string]int)
	for i, out := range d.OutputFiles {
		if out.ID == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("output-files[%d].id", i),
				Message: "output ID is empty",
			})
			continue
		}

		if prev, dup := seen[out.ID]; dup {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("output-files[%d].id", i),
				Message: fmt.Sprintf("duplicate output ID '%s' (first defined at output-files[%d])", out.ID, prev),
			})
		}
		seen[out.ID] = i

		if out.PathTemplate == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("output-files[%d].path-template", i),
				Message: "output has no path-template",
			})
		}
	}
}

func (v *Validator) validateCommandLine(d *Descriptor, result *ValidationResult) {
	// Every value-key-looking token in the command line must belong to a
	// declared input. A leftover [TOKEN] means the job spec can never fill it.
	keys := make(map[string]bool)
	for _, in := range d.Inputs {
		if in.ValueKey != "" {
			keys[in.ValueKey] = true
		}
	}

	for _, tok := range strings.Fields(d.CommandLine) {
		if !strings.HasPrefix(tok, "[") || !strings.HasSuffix(tok, "]") {
			continue
		}
		if !keys[tok] {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "command-line",
				Message: fmt.Sprintf("token '%s' has no matching input value-key", tok),
			})
		}
	}
}
