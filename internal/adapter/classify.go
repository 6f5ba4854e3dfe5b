package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sergi/go-diff/diffmatchpatch"

	"hailog/internal/hail"
)

// Tool kinds recorded in semantic.tool_kind.
const (
	ToolKindFileRead   = "file_read"
	ToolKindFileEdit   = "file_edit"
	ToolKindFileCreate = "file_create"
	ToolKindFileDelete = "file_delete"
	ToolKindCodeSearch = "code_search"
	ToolKindFileSearch = "file_search"
	ToolKindShell      = "shell"
	ToolKindWebSearch  = "web_search"
	ToolKindWebFetch   = "web_fetch"
	ToolKindImage      = "image_generate"
	ToolKindTask       = "task"
	ToolKindGeneric    = "tool"
)

var toolKinds = map[string]string{
	"read": ToolKindFileRead, "read_file": ToolKindFileRead, "view": ToolKindFileRead,

	"edit": ToolKindFileEdit, "multiedit": ToolKindFileEdit, "notebookedit": ToolKindFileEdit,
	"edit_file": ToolKindFileEdit, "search_replace": ToolKindFileEdit, "str_replace": ToolKindFileEdit,
	"apply_patch": ToolKindFileEdit,

	"write": ToolKindFileCreate, "create_file": ToolKindFileCreate,

	"delete_file": ToolKindFileDelete,

	"grep": ToolKindCodeSearch, "grep_search": ToolKindCodeSearch, "codebase_search": ToolKindCodeSearch,

	"glob": ToolKindFileSearch, "ls": ToolKindFileSearch, "list": ToolKindFileSearch,
	"list_dir": ToolKindFileSearch, "file_search": ToolKindFileSearch, "glob_file_search": ToolKindFileSearch,

	"bash": ToolKindShell, "shell": ToolKindShell, "exec_command": ToolKindShell,
	"local_shell_call": ToolKindShell, "run_terminal_cmd": ToolKindShell, "container.exec": ToolKindShell,

	"websearch": ToolKindWebSearch, "web_search": ToolKindWebSearch, "web_search_call": ToolKindWebSearch,

	"webfetch": ToolKindWebFetch, "fetch": ToolKindWebFetch, "web_fetch": ToolKindWebFetch,

	"image_gen": ToolKindImage, "generate_image": ToolKindImage, "imagegen": ToolKindImage,

	"task": ToolKindTask, "agent": ToolKindTask,
}

// ToolKindOf returns the semantic tool kind for a raw tool name.
func ToolKindOf(name string) string {
	if kind, ok := toolKinds[strings.ToLower(name)]; ok {
		return kind
	}
	return ToolKindGeneric
}

// Classify maps a raw tool invocation onto the canonical event variant.
// Unknown tools, and known tools missing their key argument, become
// ToolCall{name}.
func Classify(name string, args map[string]any) (hail.EventType, string) {
	kind := ToolKindOf(name)
	switch kind {
	case ToolKindFileRead:
		if path := ArgString(args, "file_path", "filePath", "path", "target_file", "notebook_path"); path != "" {
			return hail.FileRead{Path: path}, kind
		}
	case ToolKindFileEdit:
		if path := ArgString(args, "file_path", "filePath", "path", "target_file", "notebook_path"); path != "" {
			return hail.FileEdit{Path: path, Diff: editDiff(path, args)}, kind
		}
	case ToolKindFileCreate:
		if path := ArgString(args, "file_path", "filePath", "path", "target_file"); path != "" {
			return hail.FileCreate{Path: path}, kind
		}
	case ToolKindFileDelete:
		if path := ArgString(args, "file_path", "filePath", "path", "target_file"); path != "" {
			return hail.FileDelete{Path: path}, kind
		}
	case ToolKindCodeSearch:
		if query := ArgString(args, "pattern", "query", "regex", "search"); query != "" {
			return hail.CodeSearch{Query: query}, kind
		}
	case ToolKindFileSearch:
		if pattern := ArgString(args, "pattern", "glob_pattern", "query", "path", "target_directory"); pattern != "" {
			return hail.FileSearch{Pattern: pattern}, kind
		}
	case ToolKindShell:
		if command := ShellCommandLine(args); command != "" {
			return hail.ShellCommand{Command: command}, kind
		}
	case ToolKindWebSearch:
		if query := ArgString(args, "query", "search_term", "q"); query != "" {
			return hail.WebSearch{Query: query}, kind
		}
	case ToolKindWebFetch:
		if url := ArgString(args, "url", "uri"); url != "" {
			return hail.WebFetch{URL: url}, kind
		}
	case ToolKindImage:
		return hail.ImageGenerate{Prompt: ArgString(args, "prompt", "description")}, kind
	case ToolKindTask:
		return hail.TaskStart{Title: ArgString(args, "description", "subagent_type", "prompt")}, kind
	}
	return hail.ToolCall{Name: name}, ToolKindGeneric
}

// ArgString returns the first non-empty string argument among keys.
func ArgString(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := args[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// ShellCommandLine extracts a printable command from shell tool arguments.
// Argument vectors of the form [bash -lc script] collapse to the script.
func ShellCommandLine(args map[string]any) string {
	switch cmd := args["command"].(type) {
	case string:
		return cmd
	case []any:
		parts := make([]string, 0, len(cmd))
		for _, part := range cmd {
			parts = append(parts, fmt.Sprint(part))
		}
		if len(parts) == 3 && (parts[1] == "-lc" || parts[1] == "-c") {
			return parts[2]
		}
		return strings.Join(parts, " ")
	}
	return ArgString(args, "cmd", "script")
}

// DecodeArguments parses a JSON argument string, repairing truncated or
// sloppy JSON when a plain decode fails.
func DecodeArguments(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

// DecodeRawArguments accepts arguments encoded either as a JSON object or as
// a JSON string holding an object.
func DecodeRawArguments(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return map[string]any{}, true
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return DecodeArguments(asString)
	}
	return DecodeArguments(string(raw))
}

// UnifiedDiff renders a patch between two versions of path.
func UnifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	patches := dmp.PatchMake(before, diffs)
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", path, path, dmp.PatchToText(patches))
}

func editDiff(path string, args map[string]any) string {
	if edits, ok := args["edits"].([]any); ok {
		var parts []string
		for _, item := range edits {
			edit, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if diff := singleEditDiff(path, edit); diff != "" {
				parts = append(parts, diff)
			}
		}
		return strings.Join(parts, "\n")
	}
	return singleEditDiff(path, args)
}

func singleEditDiff(path string, args map[string]any) string {
	before, hasOld := args["old_string"].(string)
	if !hasOld {
		before, hasOld = args["oldString"].(string)
	}
	after, hasNew := args["new_string"].(string)
	if !hasNew {
		after, hasNew = args["newString"].(string)
	}
	if !hasOld || !hasNew {
		return ""
	}
	return UnifiedDiff(path, before, after)
}

var toolKindEvents = map[string]hail.EventKind{
	ToolKindFileRead:   hail.KindFileRead,
	ToolKindFileEdit:   hail.KindFileEdit,
	ToolKindFileCreate: hail.KindFileCreate,
	ToolKindFileDelete: hail.KindFileDelete,
	ToolKindCodeSearch: hail.KindCodeSearch,
	ToolKindFileSearch: hail.KindFileSearch,
	ToolKindShell:      hail.KindShellCommand,
	ToolKindWebSearch:  hail.KindWebSearch,
	ToolKindWebFetch:   hail.KindWebFetch,
	ToolKindImage:      hail.KindImageGenerate,
}

// ExpectsResult reports whether a ToolResult named resultName is an
// expected outcome of a specialized invocation of the given kind, e.g.
// FileRead with "Read" or ShellCommand with "Bash".
func ExpectsResult(kind hail.EventKind, resultName string) bool {
	if resultName == "" {
		return false
	}
	expected, ok := toolKindEvents[ToolKindOf(resultName)]
	return ok && expected == kind
}
