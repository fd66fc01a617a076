package protect

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func newTestOracle(t *testing.T, dir string) *Oracle {
	t.Helper()
	o := NewDefault()
	o.cwd = func() (string, error) { return dir, nil }
	return o
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsProtectedByName(t *testing.T) {
	o := newTestOracle(t, t.TempDir())
	tests := []struct {
		path string
		want bool
	}{
		{"toolgate.json", true},
		{"/srv/app/toolgate.json", true},
		{"/home/u/.toolgate/config.json", true},
		{"/home/u/.toolgate/config.yaml", true},
		{".env", true},
		{"/srv/app/.env", true},
		{"/srv/app/.env.production", true},
		{"./nested/../.env.local", true},
		{"/srv/app/main.go", false},
		{"/srv/app/environment.txt", false},
		{"/home/u/.toolgate/other.json", false},
		{"/srv/app/toolgate.json.bak", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := o.IsProtected(tt.path); got != tt.want {
			t.Errorf("IsProtected(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsProtectedHardlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("identity tracking requires unix")
	}
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	writeFile(t, env, "SECRET=1\n")
	link := filepath.Join(dir, "innocent.txt")
	if err := os.Link(env, link); err != nil {
		t.Skipf("hardlinks unsupported: %v", err)
	}

	o := newTestOracle(t, dir)
	if !o.IsProtected(link) {
		t.Error("hardlink to .env should be protected")
	}
	if o.IsProtected(filepath.Join(dir, "unrelated.txt")) {
		t.Error("missing unrelated file should not be protected")
	}
}

func TestIsProtectedAfterRename(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("identity tracking requires unix")
	}
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	writeFile(t, env, "SECRET=1\n")

	now := time.Unix(1_700_000_000, 0)
	o := newTestOracle(t, dir)
	o.now = func() time.Time { return now }
	o.Refresh()

	renamed := filepath.Join(dir, "notes.txt")
	if err := os.Rename(env, renamed); err != nil {
		t.Fatal(err)
	}
	if !o.IsProtected(renamed) {
		t.Error("renamed .env should stay protected within the refresh interval")
	}

	now = now.Add(RefreshInterval + time.Second)
	if o.IsProtected(renamed) {
		t.Error("after a refresh the renamed file is no longer discovered")
	}
}

func TestAddPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("identity tracking requires unix")
	}
	dir := t.TempDir()
	cfg := filepath.Join(dir, "custom-policy.yaml")
	writeFile(t, cfg, "approval_gates: {}\n")

	o := newTestOracle(t, dir)
	if o.IsProtected(cfg) {
		t.Fatal("custom policy should not be protected before AddPath")
	}
	o.AddPath(cfg)
	if !o.IsProtected(cfg) {
		t.Error("custom policy should be protected after AddPath")
	}
	o.Refresh()
	if !o.IsProtected(cfg) {
		t.Error("AddPath must survive a refresh")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	o, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if !o.IsProtected("/x/.env") {
		t.Error("defaults should apply when the file is missing")
	}

	path := filepath.Join(dir, "protected.yaml")
	writeFile(t, path, "files:\n  - \"**/secrets/*.pem\"\n  - \"[bad\"\nbasenames:\n  - id_rsa\n")
	o, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, p := range []string{"/srv/secrets/tls.pem", "/home/u/.ssh/id_rsa", "/x/.env"} {
		if !o.IsProtected(p) {
			t.Errorf("%s should be protected", p)
		}
	}
	if o.IsProtected("/srv/public/tls.pem") {
		t.Error("pem outside secrets/ should not be protected")
	}

	writeFile(t, path, "files: [unterminated\n")
	o, err = Load(path)
	if err != nil {
		t.Fatalf("malformed file should fall back, got %v", err)
	}
	if len(o.Patterns().Files) != len(DefaultPatterns.Files) {
		t.Errorf("malformed file should yield defaults, got %v", o.Patterns().Files)
	}
}
