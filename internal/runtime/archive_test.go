package runtime

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHostFile(t *testing.T, root, rel, content string, mode os.FileMode, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(p, mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func archiveDir(t *testing.T, dir, prefix string, filter Filter) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeDirToTar(tw, dir, prefix, filter); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	mtime := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	writeHostFile(t, src, "a.txt", "alpha", 0o644, mtime)
	writeHostFile(t, src, "bin/run", "#!/bin/sh", 0o755, mtime)
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	buf := archiveDir(t, src, "target", nil)

	dest := t.TempDir()
	if err := extractTar(buf, dest, "target"); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(got) != "alpha" {
		t.Fatalf("a.txt = %q, %v", got, err)
	}

	info, err := os.Stat(filepath.Join(dest, "bin/run"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("bin/run mode = %v, want 0755", info.Mode().Perm())
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("bin/run mtime = %v, want %v", info.ModTime(), mtime)
	}

	link, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil || link != "a.txt" {
		t.Errorf("link = %q, %v", link, err)
	}
}

func TestArchiveFilter(t *testing.T) {
	src := t.TempDir()
	now := time.Now()
	writeHostFile(t, src, "keep.rs", "x", 0o644, now)
	writeHostFile(t, src, "target/big.bin", "x", 0o644, now)
	writeHostFile(t, src, "notes.log", "x", 0o644, now)

	buf := archiveDir(t, src, "app", func(rel string, isDir bool) bool {
		return (rel == "target" && isDir) || strings.HasSuffix(rel, ".log")
	})

	var names []string
	tr := tar.NewReader(buf)
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, h.Name)
		if h.Uid != 0 || h.Gid != 0 || h.Uname != "" {
			t.Errorf("%s: owner not anonymized", h.Name)
		}
	}

	want := []string{"app", "app/keep.rs"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestExtractTarRejectsForeignEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "other/file", Typeflag: tar.TypeReg, Mode: 0o644})
	tw.Close()

	if err := extractTar(&buf, t.TempDir(), "target"); err == nil {
		t.Fatal("expected error for entry outside the stripped prefix")
	}
}

func TestExtractTarStaysInsideDest(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "target/escape", Typeflag: tar.TypeSymlink, Linkname: "../.."})
	body := []byte("pwned")
	tw.WriteHeader(&tar.Header{Name: "target/escape/evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))})
	tw.Write(body)
	tw.Close()

	if err := extractTar(&buf, dest, "target"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(parent), "evil")); err == nil {
		t.Fatal("archive wrote outside the destination")
	}
	if _, err := os.Stat(filepath.Join(dest, "evil")); err != nil {
		t.Fatalf("escaping entry should be confined to dest: %v", err)
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		name, strip, want string
		ok                bool
	}{
		{"target", "target", "", true},
		{"target/", "target", "", true},
		{"./target/a/b", "target", "a/b", true},
		{"targetx/a", "target", "", false},
		{"version.txt", "", "version.txt", true},
		{"../x", "", "", false},
	}
	for _, tt := range tests {
		got, ok := stripPrefix(tt.name, tt.strip)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("stripPrefix(%q, %q) = %q, %v; want %q, %v", tt.name, tt.strip, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLimitedBuffer(t *testing.T) {
	var b limitedBuffer
	b.Write([]byte(strings.Repeat("a", tailSize)))
	b.Write([]byte("  end\n"))

	got := b.String()
	if !strings.HasSuffix(got, "end") {
		t.Errorf("tail lost the most recent output: %q", got[len(got)-10:])
	}
	if len(got) > tailSize {
		t.Errorf("len = %d, want at most %d", len(got), tailSize)
	}
}

func TestEnvironmentState(t *testing.T) {
	env := NewEnvironment(nil, "/app")
	env.SetEnv("CARGO_HOME", "/root/.cargo")
	env.SetEnv("A", "1")
	env.SetWorkdir("/app/target")

	if env.Workdir() != "/app/target" {
		t.Errorf("workdir = %q", env.Workdir())
	}
	if env.Env("CARGO_HOME") != "/root/.cargo" {
		t.Errorf("CARGO_HOME = %q", env.Env("CARGO_HOME"))
	}
	if got := strings.Join(env.environ(), " "); got != "A=1 CARGO_HOME=/root/.cargo" {
		t.Errorf("environ = %q", got)
	}
}
