package llm

import (
	"strings"
	"testing"
)

func TestNormalizeToolCallIDs(t *testing.T) {
	calls := []map[string]interface{}{
		{
			"type": "function",
			"id":   "",
			"function": map[string]interface{}{
				"name":      "create_task",
				"arguments": "{}",
			},
		},
		{
			"type": "function",
			// call_id should be preferred when present
			"call_id": "tc-123",
			"function": map[string]interface{}{
				"name": "select_task",
			},
		},
		nil, // should be skipped without panic
	}

	normalized := NormalizeToolCallIDs(calls)

	if normalized[0]["id"] == "" || normalized[0]["call_id"] == "" {
		t.Fatalf("expected generated id for first call, got id=%v call_id=%v", normalized[0]["id"], normalized[0]["call_id"])
	}
	if !strings.Contains(normalized[0]["id"].(string), "create_task") {
		t.Fatalf("expected generated id to embed the tool name, got %v", normalized[0]["id"])
	}
	if normalized[1]["id"] != "tc-123" || normalized[1]["call_id"] != "tc-123" {
		t.Fatalf("expected existing call_id to be preserved, got id=%v call_id=%v", normalized[1]["id"], normalized[1]["call_id"])
	}
}

func TestNormalizeToolCallIDsWithoutName(t *testing.T) {
	calls := []map[string]interface{}{
		{"type": "function"},
	}

	normalized := NormalizeToolCallIDs(calls)
	if normalized[0]["id"] != "call_1" {
		t.Fatalf("expected positional fallback id, got %v", normalized[0]["id"])
	}
}

func TestToolCallName(t *testing.T) {
	call := map[string]interface{}{
		"function": map[string]interface{}{
			"name": "  complete_task  ",
		},
	}

	if got := ToolCallName(call); got != "complete_task" {
		t.Fatalf("expected trimmed name, got %q", got)
	}

	if got := ToolCallName(map[string]interface{}{"type": "function"}); got != "" {
		t.Fatalf("expected empty name for missing function, got %q", got)
	}

	if got := ToolCallName(nil); got != "" {
		t.Fatalf("expected empty name for nil call, got %q", got)
	}
}

func TestToolCallArgumentsFromString(t *testing.T) {
	call := map[string]interface{}{
		"function": map[string]interface{}{
			"name":      "update_task_fields",
			"arguments": `{"title":"Buy milk","urgency":"high"}`,
		},
	}

	args, err := ToolCallArguments(call)
	if err != nil {
		t.Fatalf("ToolCallArguments returned error: %v", err)
	}
	if args["title"] != "Buy milk" || args["urgency"] != "high" {
		t.Fatalf("unexpected arguments: %#v", args)
	}
}

func TestToolCallArgumentsFromObject(t *testing.T) {
	call := map[string]interface{}{
		"function": map[string]interface{}{
			"name":      "select_task",
			"arguments": map[string]interface{}{"task_id": float64(7)},
		},
	}

	args, err := ToolCallArguments(call)
	if err != nil {
		t.Fatalf("ToolCallArguments returned error: %v", err)
	}
	if args["task_id"] != float64(7) {
		t.Fatalf("unexpected arguments: %#v", args)
	}
}

func TestToolCallArgumentsEmpty(t *testing.T) {
	for _, call := range []map[string]interface{}{
		nil,
		{"type": "function"},
		{"function": map[string]interface{}{"name": "exit_editing"}},
		{"function": map[string]interface{}{"name": "exit_editing", "arguments": "  "}},
	} {
		args, err := ToolCallArguments(call)
		if err != nil {
			t.Fatalf("ToolCallArguments returned error for %#v: %v", call, err)
		}
		if len(args) != 0 {
			t.Fatalf("expected empty arguments for %#v, got %#v", call, args)
		}
	}
}

func TestToolCallArgumentsMalformed(t *testing.T) {
	call := map[string]interface{}{
		"function": map[string]interface{}{
			"name":      "create_task",
			"arguments": `{"title": "unterminated`,
		},
	}

	if _, err := ToolCallArguments(call); err == nil {
		t.Fatal("expected error for malformed argument JSON")
	}
}

func TestToolCallID(t *testing.T) {
	if got := ToolCallID(map[string]interface{}{"id": "a", "call_id": "b"}); got != "a" {
		t.Fatalf("expected id to win over call_id, got %q", got)
	}
	if got := ToolCallID(map[string]interface{}{"call_id": "b"}); got != "b" {
		t.Fatalf("expected call_id fallback, got %q", got)
	}
	if got := ToolCallID(nil); got != "" {
		t.Fatalf("expected empty id for nil call, got %q", got)
	}
}
