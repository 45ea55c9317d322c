// Package file provides the sandboxed file operation tools for book projects.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/workspace"
)

// Output caps keep tool results within a model-friendly size.
const (
	maxReadLines   = 500
	maxListEntries = 200
	maxFindResults = 50
	maxGrepMatches = 100
	grepContext    = 2
)

// Executor implements the file tools for one project sandbox.
type Executor struct {
	ws        *workspace.Manager
	projectID string
}

// NewExecutor creates a file executor bound to a project workspace.
func NewExecutor(ws *workspace.Manager, projectID string) *Executor {
	return &Executor{ws: ws, projectID: projectID}
}

// Execute dispatches a file tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	switch call.Name {
	case "read_file":
		return e.readFile(call)
	case "write_file":
		return e.writeFile(call)
	case "edit_file":
		return e.editFile(call)
	case "list_files":
		return e.listFiles(call)
	case "find_files":
		return e.findFiles(call)
	case "grep_search":
		return e.grepSearch(call)
	case "delete_file":
		return e.deleteFile(call)
	default:
		return llm.FailureResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}
}

// ListTools returns the tool definitions for file operations.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read the contents of a file with numbered lines. Reads at most 500 lines unless a line range is given.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read (relative to the project workspace)",
					},
					"start_line": map[string]any{
						"type":        "integer",
						"description": "Optional 1-indexed first line to read",
					},
					"end_line": map[string]any{
						"type":        "integer",
						"description": "Optional 1-indexed last line to read (inclusive)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, fully replacing it. Creates parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to write (relative to the project workspace)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full content to write",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "edit_file",
			Description: "Replace text in a file. Fails if the search text is not found.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to edit",
					},
					"search": map[string]any{
						"type":        "string",
						"description": "Text or pattern to search for",
					},
					"replace": map[string]any{
						"type":        "string",
						"description": "Replacement text",
					},
					"regex": map[string]any{
						"type":        "boolean",
						"description": "Treat search as a regular expression (default false)",
					},
					"case_insensitive": map[string]any{
						"type":        "boolean",
						"description": "Match case-insensitively (default false)",
					},
					"replace_all": map[string]any{
						"type":        "boolean",
						"description": "Replace every occurrence instead of only the first (default false)",
					},
				},
				"required": []string{"path", "search", "replace"},
			},
		},
		{
			Name:        "list_files",
			Description: "List directory entries with type and size. Returns at most 200 entries.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to list (relative to the project workspace, default is the root)",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Recurse into subdirectories (default false)",
					},
					"pattern": map[string]any{
						"type":        "string",
						"description": "Optional glob pattern to filter entries (e.g. '*.md')",
					},
				},
			},
		},
		{
			Name:        "find_files",
			Description: "Find files by glob pattern. Returns at most 50 paths.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Glob pattern to match file names (supports ** for directories)",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Base directory to search from (default is the workspace root)",
					},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "grep_search",
			Description: "Search file contents for a query. Returns at most 100 matches with surrounding context.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Text or regular expression to search for",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Base directory to search from (default is the workspace root)",
					},
					"file_pattern": map[string]any{
						"type":        "string",
						"description": "Optional glob filter for file names (e.g. '*.md')",
					},
					"regex": map[string]any{
						"type":        "boolean",
						"description": "Treat query as a regular expression (default false)",
					},
					"case_sensitive": map[string]any{
						"type":        "boolean",
						"description": "Match case-sensitively (default false)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "delete_file",
			Description: "Delete a file. Fails if the file does not exist.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to delete",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// success builds a success payload with extra fields merged in.
func success(call llm.ToolCall, fields map[string]any) llm.ToolResult {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	return llm.ToolResult{CallID: call.ID, Name: call.Name, Payload: payload}
}

// resolve validates a path argument against the sandbox.
func (e *Executor) resolve(call llm.ToolCall, key string, allowEmpty bool) (string, string, *llm.ToolResult) {
	rel, _ := call.Arguments[key].(string)
	if rel == "" && !allowEmpty {
		res := llm.FailureResult(call, fmt.Sprintf("%s argument is required", key))
		return "", "", &res
	}

	full, err := e.ws.Resolve(e.projectID, rel)
	if err != nil {
		res := llm.FailureResult(call, err.Error())
		return "", "", &res
	}
	return full, rel, nil
}

// intArg reads an integer argument, tolerating the float64 JSON decoding.
func intArg(call llm.ToolCall, key string) (int, bool) {
	switch v := call.Arguments[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func boolArg(call llm.ToolCall, key string) bool {
	v, _ := call.Arguments[key].(bool)
	return v
}

func (e *Executor) readFile(call llm.ToolCall) llm.ToolResult {
	full, rel, fail := e.resolve(call, "path", false)
	if fail != nil {
		return *fail
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return llm.FailureResult(call, fmt.Sprintf("file not found: %s", rel))
		}
		return llm.FailureResult(call, fmt.Sprintf("stat file: %s", err))
	}
	if !info.Mode().IsRegular() {
		return llm.FailureResult(call, fmt.Sprintf("not a regular file: %s", rel))
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("read file: %s", err))
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	start, hasStart := intArg(call, "start_line")
	end, hasEnd := intArg(call, "end_line")

	truncated := false
	switch {
	case hasStart || hasEnd:
		if !hasStart || start < 1 {
			start = 1
		}
		if !hasEnd || end > totalLines {
			end = totalLines
		}
		if start > totalLines || start > end {
			return llm.FailureResult(call, fmt.Sprintf("line range %d-%d is outside the file (%d lines)", start, end, totalLines))
		}
	default:
		start = 1
		end = totalLines
		if totalLines > maxReadLines {
			end = maxReadLines
			truncated = true
		}
	}

	var sb strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%4d | %s\n", i, lines[i-1])
	}
	if truncated {
		fmt.Fprintf(&sb, "... truncated, %d more lines not shown ...\n", totalLines-end)
	}

	return success(call, map[string]any{
		"path":        rel,
		"content":     sb.String(),
		"start_line":  start,
		"end_line":    end,
		"total_lines": totalLines,
		"truncated":   truncated,
	})
}

func (e *Executor) writeFile(call llm.ToolCall) llm.ToolResult {
	full, rel, fail := e.resolve(call, "path", false)
	if fail != nil {
		return *fail
	}

	content, ok := call.Arguments["content"].(string)
	if !ok {
		return llm.FailureResult(call, "content argument is required")
	}

	_, statErr := os.Stat(full)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("create directory: %s", err))
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("write file: %s", err))
	}

	action := "updated"
	if created {
		action = "created"
	}
	return success(call, map[string]any{
		"path":       rel,
		"action":     action,
		"lines":      len(strings.Split(content, "\n")),
		"characters": len(content),
	})
}

func (e *Executor) editFile(call llm.ToolCall) llm.ToolResult {
	full, rel, fail := e.resolve(call, "path", false)
	if fail != nil {
		return *fail
	}

	search, ok := call.Arguments["search"].(string)
	if !ok || search == "" {
		return llm.FailureResult(call, "search argument is required")
	}
	replace, ok := call.Arguments["replace"].(string)
	if !ok {
		return llm.FailureResult(call, "replace argument is required")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return llm.FailureResult(call, fmt.Sprintf("file not found: %s", rel))
		}
		return llm.FailureResult(call, fmt.Sprintf("read file: %s", err))
	}
	original := string(data)

	useRegex := boolArg(call, "regex")
	caseInsensitive := boolArg(call, "case_insensitive")
	replaceAll := boolArg(call, "replace_all")

	pattern := search
	if !useRegex {
		pattern = regexp.QuoteMeta(search)
	}
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("invalid search pattern: %s", err))
	}

	matches := re.FindAllStringIndex(original, -1)
	if len(matches) == 0 {
		return llm.FailureResult(call, fmt.Sprintf("search text not found in %s", rel))
	}

	count := len(matches)
	if !replaceAll {
		count = 1
	}

	var edited string
	if replaceAll {
		if useRegex {
			edited = re.ReplaceAllString(original, replace)
		} else {
			edited = re.ReplaceAllLiteralString(original, replace)
		}
	} else {
		loc := re.FindStringSubmatchIndex(original)
		expanded := replace
		if useRegex {
			expanded = string(re.ExpandString(nil, replace, original, loc))
		}
		edited = original[:loc[0]] + expanded + original[loc[1]:]
	}

	if err := os.WriteFile(full, []byte(edited), 0644); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("write file: %s", err))
	}

	return success(call, map[string]any{
		"path":         rel,
		"replacements": count,
		"diff":         diffSummary(original, edited),
	})
}

// diffSummary renders a compact change summary for the model.
func diffSummary(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		text := d.Text
		if len(text) > 120 {
			text = text[:120] + "..."
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&sb, "+%s", text)
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&sb, "-%s", text)
		}
	}
	out := sb.String()
	if len(out) > 500 {
		out = out[:500] + "..."
	}
	return out
}

type listEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (e *Executor) listFiles(call llm.ToolCall) llm.ToolResult {
	full, rel, fail := e.resolve(call, "path", true)
	if fail != nil {
		return *fail
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return llm.FailureResult(call, fmt.Sprintf("directory not found: %s", rel))
		}
		return llm.FailureResult(call, fmt.Sprintf("stat path: %s", err))
	}
	if !info.IsDir() {
		return llm.FailureResult(call, fmt.Sprintf("not a directory: %s", rel))
	}

	recursive := boolArg(call, "recursive")
	pattern, _ := call.Arguments["pattern"].(string)

	var entries []listEntry
	truncated := false

	walkErr := filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == full {
			return nil
		}
		name := d.Name()
		if e.ws.Ignored(name, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		relPath, _ := filepath.Rel(full, path)
		if pattern != "" {
			if ok, err := doublestar.Match(pattern, name); err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			} else if !ok {
				if d.IsDir() && recursive {
					return nil
				}
				if d.IsDir() && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
		}

		// The cap is checked only once an entry passes the filter, so the
		// truncation flag means a matching entry was actually dropped.
		if len(entries) >= maxListEntries {
			truncated = true
			return filepath.SkipAll
		}

		entryType := "file"
		var size int64
		if d.IsDir() {
			entryType = "dir"
		} else if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		entries = append(entries, listEntry{Path: relPath, Type: entryType, Size: size})

		if d.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return llm.FailureResult(call, walkErr.Error())
	}

	return success(call, map[string]any{
		"path":      rel,
		"entries":   entries,
		"count":     len(entries),
		"truncated": truncated,
	})
}

func (e *Executor) findFiles(call llm.ToolCall) llm.ToolResult {
	pattern, ok := call.Arguments["pattern"].(string)
	if !ok || pattern == "" {
		return llm.FailureResult(call, "pattern argument is required")
	}

	full, _, fail := e.resolve(call, "path", true)
	if fail != nil {
		return *fail
	}

	var paths []string
	truncated := false

	err := filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if e.ws.Ignored(d.Name(), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(full, path)
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		if !matched {
			// Also try matching just the file name so "*.md" finds
			// chapters/chapter_1.md.
			matched, _ = doublestar.Match(pattern, d.Name())
		}
		if matched {
			if len(paths) >= maxFindResults {
				truncated = true
				return filepath.SkipAll
			}
			paths = append(paths, relPath)
		}
		return nil
	})
	if err != nil {
		return llm.FailureResult(call, err.Error())
	}

	return success(call, map[string]any{
		"pattern":   pattern,
		"paths":     paths,
		"count":     len(paths),
		"truncated": truncated,
	})
}

type grepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Context string `json:"context"`
}

func (e *Executor) grepSearch(call llm.ToolCall) llm.ToolResult {
	query, ok := call.Arguments["query"].(string)
	if !ok || query == "" {
		return llm.FailureResult(call, "query argument is required")
	}

	full, _, fail := e.resolve(call, "path", true)
	if fail != nil {
		return *fail
	}

	filePattern, _ := call.Arguments["file_pattern"].(string)
	useRegex := boolArg(call, "regex")
	caseSensitive := boolArg(call, "case_sensitive")

	pattern := query
	if !useRegex {
		pattern = regexp.QuoteMeta(query)
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("invalid query pattern: %s", err))
	}

	var matches []grepMatch
	truncated := false

	walkErr := filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if e.ws.Ignored(d.Name(), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if truncated {
			return filepath.SkipAll
		}
		if filePattern != "" {
			if ok, _ := doublestar.Match(filePattern, d.Name()); !ok {
				return nil
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(full, path)
		lines := strings.Split(string(data), "\n")

		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			if len(matches) >= maxGrepMatches {
				truncated = true
				return filepath.SkipAll
			}

			from := max(0, i-grepContext)
			to := min(len(lines), i+grepContext+1)
			matches = append(matches, grepMatch{
				File:    relPath,
				Line:    i + 1,
				Text:    line,
				Context: strings.Join(lines[from:to], "\n"),
			})
		}
		return nil
	})
	if walkErr != nil {
		return llm.FailureResult(call, walkErr.Error())
	}

	return success(call, map[string]any{
		"query":     query,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	})
}

func (e *Executor) deleteFile(call llm.ToolCall) llm.ToolResult {
	full, rel, fail := e.resolve(call, "path", false)
	if fail != nil {
		return *fail
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return llm.FailureResult(call, fmt.Sprintf("file not found: %s", rel))
		}
		return llm.FailureResult(call, fmt.Sprintf("stat file: %s", err))
	}
	if !info.Mode().IsRegular() {
		return llm.FailureResult(call, fmt.Sprintf("not a regular file: %s", rel))
	}

	size := info.Size()
	if err := os.Remove(full); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("delete file: %s", err))
	}

	return success(call, map[string]any{
		"path":          rel,
		"bytes_removed": size,
	})
}
