//go:build linux

package pathid

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsNetworkFSType(t *testing.T) {
	tests := []struct {
		name  string
		magic uint32
		want  bool
	}{
		{"nfs", unix.NFS_SUPER_MAGIC, true},
		{"cifs", unix.CIFS_SUPER_MAGIC, true},
		{"smb2", unix.SMB2_SUPER_MAGIC, true},
		{"fuse", unix.FUSE_SUPER_MAGIC, true},
		{"ext4", unix.EXT4_SUPER_MAGIC, false},
		{"tmpfs", unix.TMPFS_MAGIC, false},
		{"btrfs", unix.BTRFS_SUPER_MAGIC, false},
	}
	for _, tt := range tests {
		if got := isNetworkFSType(tt.magic); got != tt.want {
			t.Errorf("%s: isNetworkFSType(%#x) = %v, want %v", tt.name, tt.magic, got, tt.want)
		}
	}
}

func TestIsNetworkFSNewFileUsesParent(t *testing.T) {
	dir := t.TempDir()
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		t.Skipf("statfs unavailable: %v", err)
	}
	want := isNetworkFSType(uint32(st.Type))
	if got := isNetworkFS(filepath.Join(dir, "new.txt")); got != want {
		t.Errorf("isNetworkFS(new file) = %v, want %v (parent)", got, want)
	}
	if isNetworkFS(filepath.Join(dir, "missing", "deeper", "x")) {
		t.Error("unresolvable path should not be reported as network")
	}
}
