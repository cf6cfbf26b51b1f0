package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// NormalizeToolCallIDs ensures every tool call has a stable identifier.
// Some providers occasionally omit call IDs, which breaks downstream requests
// that require tool_call_id on tool messages.
func NormalizeToolCallIDs(toolCalls []map[string]interface{}) []map[string]interface{} {
	for i, tc := range toolCalls {
		if tc == nil {
			continue
		}

		id := firstNonEmptyString(tc["id"], tc["call_id"])
		if strings.TrimSpace(id) == "" {
			if fn, ok := tc["function"].(map[string]interface{}); ok {
				if name := sanitizeToolName(fn["name"]); name != "" {
					id = fmt.Sprintf("call_%s_%d", name, i+1)
				}
			}
		}
		if strings.TrimSpace(id) == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}

		tc["id"] = id
		tc["call_id"] = id
	}
	return toolCalls
}

// ToolCallID returns the identifier of a tool call, preferring "id" over "call_id".
func ToolCallID(call map[string]interface{}) string {
	if call == nil {
		return ""
	}
	return firstNonEmptyString(call["id"], call["call_id"])
}

// ToolCallName returns the function name of a tool call, or "" when absent.
func ToolCallName(call map[string]interface{}) string {
	if call == nil {
		return ""
	}
	function, _ := call["function"].(map[string]interface{})
	if function == nil {
		return ""
	}
	return strings.TrimSpace(toString(function["name"]))
}

// ToolCallArguments decodes the arguments of a tool call into a map.
// Providers deliver arguments either as a JSON string or as an already
// decoded object; both forms are accepted.
func ToolCallArguments(call map[string]interface{}) (map[string]interface{}, error) {
	if call == nil {
		return map[string]interface{}{}, nil
	}
	function, _ := call["function"].(map[string]interface{})
	if function == nil {
		return map[string]interface{}{}, nil
	}

	switch v := function["arguments"].(type) {
	case nil:
		return map[string]interface{}{}, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]interface{}{}, nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("invalid tool call arguments: %w", err)
		}
		if decoded == nil {
			decoded = map[string]interface{}{}
		}
		return decoded, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("tool call arguments must be an object, got %T", v)
	}
}

func firstNonEmptyString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func sanitizeToolName(raw interface{}) string {
	name, _ := raw.(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(bytes)
	}
}
