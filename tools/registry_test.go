package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(echoTool{}); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestRegistryDefinitions(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	defs := registry.Definitions()
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	def := defs[0]
	if def.Name != "echo" {
		t.Errorf("name = %q", def.Name)
	}
	if def.Parameters["type"] != "object" {
		t.Errorf("schema type = %v", def.Parameters["type"])
	}
	properties, ok := def.Parameters["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties missing: %v", def.Parameters)
	}
	text, ok := properties["text"].(map[string]interface{})
	if !ok || text["type"] != "string" {
		t.Errorf("text property = %v", properties["text"])
	}
	required, ok := def.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "text" {
		t.Errorf("required = %v", def.Parameters["required"])
	}
}

func TestWithDefaults(t *testing.T) {
	registry, err := WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults: %v", err)
	}
	for _, name := range []string{"read_file", "write_file", "edit_file", "append_file", "http_request"} {
		if !registry.Has(name) {
			t.Errorf("default registry missing %q", name)
		}
	}
	if desc := registry.Description(); !strings.Contains(desc, "read_file") {
		t.Error("Description omits read_file")
	}
}

func TestFileToolsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	write := NewWriteFileTool(DefaultMaxFileSize).WithAllowedPaths([]string{dir})
	args, _ := json.Marshal(map[string]string{"path": path, "content": "hello"})
	result, err := write.Execute(context.Background(), args)
	if err != nil || !result.Success() {
		t.Fatalf("write: %v / %v", err, result.Error)
	}

	appendTool := NewAppendFileTool(DefaultMaxFileSize).WithAllowedPaths([]string{dir})
	args, _ = json.Marshal(map[string]string{"path": path, "content": " world"})
	if result, err = appendTool.Execute(context.Background(), args); err != nil || !result.Success() {
		t.Fatalf("append: %v / %v", err, result.Error)
	}

	edit := NewEditFileTool(DefaultMaxFileSize).WithAllowedPaths([]string{dir})
	args, _ = json.Marshal(map[string]string{"path": path, "search": "world", "replace": "there"})
	if result, err = edit.Execute(context.Background(), args); err != nil || !result.Success() {
		t.Fatalf("edit: %v / %v", err, result.Error)
	}

	read := NewReadFileTool(DefaultMaxFileSize).WithAllowedPaths([]string{dir})
	args, _ = json.Marshal(map[string]string{"path": path})
	result, err = read.Execute(context.Background(), args)
	if err != nil || !result.Success() {
		t.Fatalf("read: %v / %v", err, result.Error)
	}
	if result.Output != "hello there" {
		t.Errorf("content = %q, want %q", result.Output, "hello there")
	}

	content, _ := os.ReadFile(path)
	if string(content) != "hello there" {
		t.Errorf("on disk = %q", content)
	}
}

func TestFileToolsRespectAllowedPaths(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()

	read := NewReadFileTool(DefaultMaxFileSize).WithAllowedPaths([]string{dir})
	outside := filepath.Join(other, "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}

	args, _ := json.Marshal(map[string]string{"path": outside})
	result, err := read.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if result.Success() {
		t.Error("read outside allowed paths succeeded")
	}
}
