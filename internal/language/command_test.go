package language

import (
	"strings"
	"testing"
)

func TestBuildCommandNoDepsIsIdentity(t *testing.T) {
	code := "print('hi')"
	got := BuildCommand(Python, code, nil)
	want := Python.ExecuteCommand(code)
	if len(got) != len(want) {
		t.Fatalf("expected identity command, got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("expected identity command, got %v want %v", got, want)
		}
	}
}

func TestBuildCommandWithDepsWrapsInShell(t *testing.T) {
	got := BuildCommand(Python, "print('hi')", []string{"requests"})
	if len(got) != 3 || got[0] != "sh" || got[1] != "-c" {
		t.Fatalf("expected sh -c wrapper, got %v", got)
	}
	script := got[2]
	installIdx := strings.Index(script, "pip install --quiet requests")
	execIdx := strings.Index(script, "python -c")
	if installIdx < 0 {
		t.Fatalf("script missing install command: %q", script)
	}
	if execIdx < 0 {
		t.Fatalf("script missing execute command: %q", script)
	}
	joinIdx := strings.Index(script, "&&")
	if joinIdx < 0 || joinIdx < installIdx || joinIdx > execIdx {
		t.Fatalf("expected install && exec ordering: %q", script)
	}
}

func TestBuildCommandReusesShScript(t *testing.T) {
	got := BuildCommand(Go, "package main", []string{"example.com/dep"})
	if got[0] != "sh" || got[1] != "-c" {
		t.Fatalf("expected sh -c wrapper, got %v", got)
	}
	if !strings.Contains(got[2], "go install example.com/dep@latest") {
		t.Fatalf("expected install command in script: %q", got[2])
	}
	if !strings.Contains(got[2], "go run /tmp/main.go") {
		t.Fatalf("expected original exec script preserved: %q", got[2])
	}
}
