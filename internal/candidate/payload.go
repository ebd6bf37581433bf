package candidate

import (
	"fmt"
	"strings"
)

// payloadRule describes the shape a candidate type's payload must have.
// Payloads are validated at the staging boundary so nothing downstream
// needs to re-check them.
type payloadRule struct {
	required []string
	check    func(payload map[string]any) error
}

// payloadRules maps candidate type tags to their payload shape. Types not
// listed here are accepted with any payload (the extractor may propose
// claim kinds the store has no schema for yet).
var payloadRules = map[string]payloadRule{
	"component": {
		required: []string{"name"},
	},
	"dependency": {
		required: []string{"name"},
		check:    checkDependency,
	},
	"port": {
		required: []string{"number"},
		check:    checkPort,
	},
	"endpoint": {
		required: []string{"path"},
	},
}

// KnownPayloadTypes returns the type tags with a registered payload schema.
func KnownPayloadTypes() []string {
	types := make([]string, 0, len(payloadRules))
	for t := range payloadRules {
		types = append(types, t)
	}
	return types
}

// ValidatePayload checks a payload against the schema registered for typ.
// Returns a descriptive error naming the offending field, or nil.
func ValidatePayload(typ string, payload map[string]any) error {
	rule, ok := payloadRules[typ]
	if !ok {
		return nil
	}

	for _, field := range rule.required {
		v, present := payload[field]
		if !present {
			return fmt.Errorf("payload for type %q missing required field %q", typ, field)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return fmt.Errorf("payload field %q must not be empty", field)
		}
	}

	if rule.check != nil {
		return rule.check(payload)
	}
	return nil
}

// checkDependency validates optional dependency fields.
func checkDependency(payload map[string]any) error {
	if v, ok := payload["version"]; ok {
		if _, isString := v.(string); !isString {
			return fmt.Errorf("payload field %q must be a string", "version")
		}
	}
	return nil
}

// checkPort validates the port number range.
func checkPort(payload map[string]any) error {
	n, ok := asInt(payload["number"])
	if !ok {
		return fmt.Errorf("payload field %q must be an integer", "number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("payload field %q out of range: %d", "number", n)
	}
	return nil
}

// asInt coerces JSON numbers (float64 after unmarshal) and ints.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
