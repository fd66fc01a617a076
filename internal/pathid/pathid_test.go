//go:build unix

package pathid

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func requireCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var ve *VerifyError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VerifyError, got %T: %v", err, err)
	}
	if ve.Code != want {
		t.Fatalf("code = %s, want %s (%v)", ve.Code, want, err)
	}
}

func TestCaptureInvalidPath(t *testing.T) {
	_, err := Capture("")
	requireCode(t, err, CodeInvalidPath)
	_, err = Capture("bad\x00path")
	requireCode(t, err, CodeInvalidPath)
}

func TestCaptureExisting(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "a.txt", "hello")
	ap, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !ap.Existed {
		t.Error("expected Existed")
	}
	if !ap.Identity.Valid() {
		t.Error("expected a valid identity")
	}
	if !filepath.IsAbs(ap.ResolvedPath) || filepath.Base(ap.ResolvedPath) != "a.txt" {
		t.Errorf("ResolvedPath = %q", ap.ResolvedPath)
	}
	if err := Verify(ap); err != nil {
		t.Errorf("Verify on unchanged file: %v", err)
	}
}

func TestCaptureNewFile(t *testing.T) {
	dir := t.TempDir()
	ap, err := Capture(filepath.Join(dir, "new.txt"))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if ap.Existed {
		t.Error("new file should not be marked existing")
	}
	if !ap.ParentIdentity.Valid() {
		t.Error("expected parent identity")
	}
	canonDir, _ := filepath.EvalSymlinks(dir)
	if ap.ParentPath != canonDir {
		t.Errorf("ParentPath = %q, want %q", ap.ParentPath, canonDir)
	}
	if ap.ResolvedPath != filepath.Join(canonDir, "new.txt") {
		t.Errorf("ResolvedPath = %q", ap.ResolvedPath)
	}
	if err := Verify(ap); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestCaptureMissingParent(t *testing.T) {
	_, err := Capture(filepath.Join(t.TempDir(), "nope", "new.txt"))
	requireCode(t, err, CodeParent)
}

func TestVerifyDetectsReplacement(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.txt", "original")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}

	other := writeTemp(t, dir, "b.txt", "attacker")
	if err := os.Rename(other, path); err != nil {
		t.Fatal(err)
	}
	requireCode(t, Verify(ap), CodeInodeMismatch)
	_, err = VerifyAndOpen(ap, os.O_RDONLY)
	requireCode(t, err, CodeInodeMismatch)
}

func TestVerifyDetectsDeletion(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "a.txt", "x")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	requireCode(t, Verify(ap), CodeDeleted)
	_, err = VerifyAndOpen(ap, os.O_RDONLY)
	requireCode(t, err, CodeDeleted)
}

func TestVerifyAndOpenRejectsSymlinkSwap(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.txt", "x")
	secret := writeTemp(t, dir, "secret.txt", "s3cret")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, path); err != nil {
		t.Fatal(err)
	}
	_, err = VerifyAndOpen(ap, os.O_RDONLY)
	requireCode(t, err, CodeSymlink)
}

func TestVerifyAndOpenExisting(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "a.txt", "hello")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := VerifyAndOpen(ap, os.O_RDONLY)
	if err != nil {
		t.Fatalf("VerifyAndOpen: %v", err)
	}
	defer f.Close()
	buf := make([]byte, 5)
	if _, err := f.Read(buf); err != nil || string(buf) != "hello" {
		t.Errorf("read %q, %v", buf, err)
	}
}

func TestVerifyAndOpenCreatesNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := VerifyAndOpen(ap, os.O_WRONLY)
	if err != nil {
		t.Fatalf("VerifyAndOpen: %v", err)
	}
	if _, err := f.WriteString("data"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Fatalf("file content %q, %v", data, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o600 != 0o600 {
		t.Errorf("mode = %v, want owner read/write", info.Mode())
	}

	_, err = VerifyAndOpen(ap, os.O_WRONLY)
	requireCode(t, err, CodeAlreadyExists)
}

func TestVerifyAndOpenNewFileRace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	secret := writeTemp(t, dir, "secret.txt", "s")
	if err := os.Symlink(secret, path); err != nil {
		t.Fatal(err)
	}
	_, err = VerifyAndOpen(ap, os.O_WRONLY)
	requireCode(t, err, CodeAlreadyExists)
}

func TestVerifyDetectsParentSwap(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "work")
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	ap, err := Capture(filepath.Join(dir, "new.txt"))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(dir, filepath.Join(root, "work.old")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	requireCode(t, Verify(ap), CodeParentChanged)
	_, err = VerifyAndOpen(ap, os.O_WRONLY)
	requireCode(t, err, CodeParentChanged)
}

func TestVerifyParentGone(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "work")
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	ap, err := Capture(filepath.Join(dir, "new.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	requireCode(t, Verify(ap), CodeParent)
}

func TestErrorType(t *testing.T) {
	tests := map[Code]string{
		CodeSymlink:       "symlink_rejected",
		CodeInodeMismatch: "path_changed",
		CodeParentChanged: "path_changed",
		CodeDeleted:       "file_deleted",
		CodeAlreadyExists: "file_exists",
		CodeNetworkFS:     "network_fs_warning",
		CodeOpen:          "verification_failed",
		CodeCreate:        "verification_failed",
		CodeResolve:       "verification_failed",
	}
	for code, want := range tests {
		if got := ErrorType(code); got != want {
			t.Errorf("ErrorType(%s) = %q, want %q", code, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != CodeOK {
		t.Error("nil should be OK")
	}
	wrapped := errors.Join(errors.New("ctx"), verifyErr(CodeDeleted, "/x", nil))
	if CodeOf(wrapped) != CodeDeleted {
		t.Error("CodeOf should unwrap")
	}
	if CodeOf(errors.New("plain")) != CodeOpen {
		t.Error("foreign errors map to OPEN")
	}
	msg := verifyErr(CodeSymlink, "/etc/passwd", nil).Error()
	if !strings.Contains(msg, "/etc/passwd") || !strings.Contains(msg, "symlink") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestBindingConsumedOnce(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "a.txt", "x")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	b := Bind(ap)
	if _, err := b.OpenRead("/etc/hosts"); err == nil {
		t.Fatal("expected unapproved path to be refused")
	}
	f, err := b.OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	f.Close()
	if _, err := b.OpenRead(path); !errors.Is(err, ErrConsumed) {
		t.Errorf("second open err = %v, want ErrConsumed", err)
	}
	if b.Release() != nil {
		t.Error("Release after consumption should return nil")
	}
}

func TestBindingAppend(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "log.txt", "a")
	ap, err := Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Bind(ap).OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := f.WriteString("b"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	data, _ := os.ReadFile(path)
	if string(data) != "ab" {
		t.Errorf("content = %q, want ab", data)
	}
}
