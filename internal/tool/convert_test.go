package tool

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flightbot/internal/config"
	"flightbot/internal/domain"
)

func newTestFileTool(t *testing.T) *FileTool {
	t.Helper()
	return NewFileTool(config.ConvertConfig{TimeoutSeconds: 30}, testLogger())
}

func runFileTool(t *testing.T, args map[string]any) domain.ToolResult {
	t.Helper()
	res, err := newTestFileTool(t).Execute(context.Background(), domain.ToolRequest{Name: "file_tool", Args: args})
	if err != nil {
		t.Fatalf("operational failures must not escape: %v", err)
	}
	return res
}

func TestFileTool_Rename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.txt")
	dst := filepath.Join(dir, "new.txt")
	writeBytes(t, src, 12)

	res := runFileTool(t, map[string]any{"operation": "rename", "input": src, "output": dst})

	if !res.Success {
		t.Fatalf("rename failed: %s", res.Error)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source should be gone")
	}
	report := res.Data.(convertReport)
	if report.OutputPath != dst {
		t.Fatalf("expected output path %q, got %q", dst, report.OutputPath)
	}
	if report.Details.OriginalSize != 12 {
		t.Fatalf("expected original size 12, got %d", report.Details.OriginalSize)
	}
}

func TestFileTool_RenameRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.txt")
	dst := filepath.Join(dir, "new.txt")
	writeBytes(t, src, 1)
	writeBytes(t, dst, 1)

	res := runFileTool(t, map[string]any{"operation": "rename", "input": src, "output": dst})

	if res.Success {
		t.Fatal("expected failure when destination exists")
	}
	if !strings.Contains(res.Error, "already exists") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestFileTool_CompressDecompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	writeBytes(t, filepath.Join(src, "a.txt"), 100)
	writeBytes(t, filepath.Join(src, "nested", "b.txt"), 200)

	res := runFileTool(t, map[string]any{"operation": "compress", "input": src})
	if !res.Success {
		t.Fatalf("compress failed: %s", res.Error)
	}
	archive := res.Data.(convertReport).OutputPath
	if !strings.HasSuffix(archive, ".tar.gz") {
		t.Fatalf("unexpected archive path: %q", archive)
	}

	dest := filepath.Join(dir, "restored")
	res = runFileTool(t, map[string]any{"operation": "decompress", "input": archive, "output": dest})
	if !res.Success {
		t.Fatalf("decompress failed: %s", res.Error)
	}

	for _, rel := range []string{"data/a.txt", "data/nested/b.txt"} {
		if _, err := os.Stat(filepath.Join(dest, rel)); err != nil {
			t.Fatalf("missing %s after round trip: %v", rel, err)
		}
	}
}

func TestFileTool_Organize(t *testing.T) {
	dir := t.TempDir()
	writeBytes(t, filepath.Join(dir, "a.txt"), 1)
	writeBytes(t, filepath.Join(dir, "B.TXT"), 1)
	writeBytes(t, filepath.Join(dir, "c.go"), 1)
	writeBytes(t, filepath.Join(dir, "Makefile"), 1)

	res := runFileTool(t, map[string]any{"operation": "organize", "input": dir})
	if !res.Success {
		t.Fatalf("organize failed: %s", res.Error)
	}

	for _, rel := range []string{"txt/a.txt", "txt/B.TXT", "go/c.go", "no_extension/Makefile"} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Fatalf("expected %s: %v", rel, err)
		}
	}
}

func TestFileTool_UnknownOperation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeBytes(t, src, 1)

	res := runFileTool(t, map[string]any{"operation": "transmogrify", "input": src})
	if res.Success {
		t.Fatal("expected failure for unknown operation")
	}
	if !strings.Contains(res.Error, "unknown operation") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestFileTool_MissingInput(t *testing.T) {
	res := runFileTool(t, map[string]any{"operation": "rename", "input": "/no/such/file", "output": "/tmp/x"})
	if res.Success {
		t.Fatal("expected failure for missing input")
	}
	if !strings.Contains(res.Error, "input not found") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestFileTool_ConvertUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.zzz")
	writeBytes(t, src, 1)

	res := runFileTool(t, map[string]any{
		"operation": "convert",
		"input":     src,
		"options":   map[string]any{"format": "pdf"},
	})
	if res.Success {
		t.Fatal("expected failure for unroutable extension")
	}
	if !strings.Contains(res.Error, "no conversion engine") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestFileTool_ConvertRequiresFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeBytes(t, src, 1)

	res := runFileTool(t, map[string]any{"operation": "convert", "input": src})
	if res.Success {
		t.Fatal("expected failure without a target format")
	}
}

func TestExtractTarGz_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	content := []byte("gotcha")
	if err := tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()
	f.Close()

	if _, err := ExtractTarGz(archive, filepath.Join(dir, "out")); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
}

func TestParsePageRange(t *testing.T) {
	cases := []struct {
		in          string
		first, last int
		ok          bool
	}{
		{"", 0, 0, false},
		{"3", 3, 3, true},
		{"2-5", 2, 5, true},
		{" 1 - 9 ", 1, 9, true},
		{"5-2", 0, 0, false},
		{"0-4", 0, 0, false},
		{"abc", 0, 0, false},
	}
	for _, c := range cases {
		first, last, ok := parsePageRange(c.in)
		if first != c.first || last != c.last || ok != c.ok {
			t.Errorf("parsePageRange(%q) = (%d, %d, %v), want (%d, %d, %v)", c.in, first, last, ok, c.first, c.last, c.ok)
		}
	}
}

func TestQualityMappings(t *testing.T) {
	ft := newTestFileTool(t)
	if got := ft.crfFor("high"); got != "18" {
		t.Fatalf("crf high = %s", got)
	}
	if got := ft.crfFor(""); got != "23" {
		t.Fatalf("crf default = %s", got)
	}
	if got := ft.crfFor("weird"); got != "23" {
		t.Fatalf("crf unknown = %s", got)
	}
	if got := ft.crfFor("low"); got != "28" {
		t.Fatalf("crf low = %s", got)
	}

	if got := imageQuality(""); got != "" {
		t.Fatalf("image quality empty = %q", got)
	}
	if got := imageQuality("high"); got != "95" {
		t.Fatalf("image quality high = %q", got)
	}
	if got := imageQuality("42"); got != "42" {
		t.Fatalf("numeric image quality should pass through, got %q", got)
	}
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	good := `name: markdown-to-html
match: [md, markdown]
engine: pandoc
args: ["-f", "markdown", "-o", "{output}", "{input}"]
`
	if err := os.WriteFile(filepath.Join(dir, "md.yaml"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not a profile"), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if profiles[0].Name != "markdown-to-html" || profiles[0].Engine != "pandoc" {
		t.Fatalf("unexpected profile: %+v", profiles[0])
	}
}

func TestLoadProfiles_NameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	prof := `match: [svg]
engine: sh
args: ["-c", "true"]
`
	if err := os.WriteFile(filepath.Join(dir, "svg-passthrough.yaml"), []byte(prof), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Name != "svg-passthrough" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}

func TestLoadProfiles_MissingDirIsNotAnError(t *testing.T) {
	profiles, err := LoadProfiles("/no/such/profiles/dir", testLogger())
	if err != nil {
		t.Fatalf("missing dir should be skipped: %v", err)
	}
	if profiles != nil {
		t.Fatalf("expected no profiles, got %v", profiles)
	}
}

func TestMatchProfile(t *testing.T) {
	profiles := []ConvertProfile{
		{Name: "unavailable", Match: []string{"md"}, Engine: "definitely-not-a-real-binary-xyz"},
		{Name: "available", Match: []string{"md"}, Engine: "sh"},
	}

	got := matchProfile(profiles, "md")
	if got == nil || got.Name != "available" {
		t.Fatalf("expected the profile with a resolvable engine, got %+v", got)
	}
	if matchProfile(profiles, "png") != nil {
		t.Fatal("expected no match for unlisted extension")
	}
}

func TestExpandProfileArgs(t *testing.T) {
	args := expandProfileArgs(
		[]string{"-f", "{format}", "-q", "{quality}", "-o", "{output}", "{input}"},
		"in.md", "out.html", "html", "high",
	)
	want := []string{"-f", "html", "-q", "high", "-o", "out.html", "in.md"}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}
