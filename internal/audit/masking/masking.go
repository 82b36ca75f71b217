// Package masking redacts personal data before it lands in audit metadata.
package masking

import "strings"

const maskToken = "****"

// MaskEmail hides the local part of an address while keeping enough to
// recognize it. "alice@example.com" becomes "a****@example.com".
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return maskToken
	}

	local := trimmed[:at]
	domain := trimmed[at:]
	return local[:1] + maskToken + domain
}

// MaskJSON returns a copy of the input with values under sensitive keys
// masked. Nested maps and slices are walked recursively.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

var sensitiveKeys = map[string]struct{}{
	"email": {},
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskEmail(cast)
		}
		return cast
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}
