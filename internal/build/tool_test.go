package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cruciblehq/cruxbuild/internal/config"
)

func writeExecutable(t *testing.T, file string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(file, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestResolveToolDefaultConfigUsesPath(t *testing.T) {
	bin := t.TempDir()
	writeExecutable(t, filepath.Join(bin, config.DefaultToolBinary), 0o755)
	t.Setenv("PATH", bin)

	tool := config.Default().Tool
	if tool.Install != "" {
		t.Fatalf("default tool.install = %q, want empty", tool.Install)
	}

	want := filepath.Join(bin, config.DefaultToolBinary)
	if got := resolveTool(tool); got != want {
		t.Errorf("resolveTool() = %q, want %q", got, want)
	}
}

func TestResolveToolExplicitInstall(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	tool := config.Tool{Binary: "rfi", Install: "/opt/cruxbuild/rfi"}
	if got := resolveTool(tool); got != "/opt/cruxbuild/rfi" {
		t.Errorf("resolveTool() = %q, want the configured path", got)
	}
}

func TestResolveToolNotFound(t *testing.T) {
	bin := t.TempDir()
	writeExecutable(t, filepath.Join(bin, "rfi"), 0o644)
	t.Setenv("PATH", bin)

	if got := resolveTool(config.Tool{Binary: "rfi"}); got != "" {
		t.Errorf("resolveTool() = %q, want empty", got)
	}
}

func TestResolveToolUsesBaseName(t *testing.T) {
	bin := t.TempDir()
	writeExecutable(t, filepath.Join(bin, "rfi"), 0o755)
	t.Setenv("PATH", bin)

	want := filepath.Join(bin, "rfi")
	if got := resolveTool(config.Tool{Binary: "/usr/local/bin/rfi"}); got != want {
		t.Errorf("resolveTool() = %q, want %q", got, want)
	}
}
