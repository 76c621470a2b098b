package capability

import (
	"fmt"
)

// ValidationError represents argument validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// validateArgs checks supplied arguments against a descriptor's declared
// parameters: required parameters must be present and provided values must
// match their declared type. Extra arguments are allowed.
func validateArgs(args map[string]any, desc Descriptor) error {
	for name, p := range desc.Params {
		if !p.Required {
			continue
		}
		if _, exists := args[name]; !exists {
			return &ValidationError{
				Field:   name,
				Message: "required field is missing",
			}
		}
	}

	for name, value := range args {
		p, declared := desc.Params[name]
		if !declared {
			continue
		}
		if !isValidType(value, p.Type) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", p.Type, value),
			}
		}
	}

	return nil
}

// isValidType checks if a value is valid according to the declared type.
func isValidType(value any, expected ParamType) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expected {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case TypeNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
