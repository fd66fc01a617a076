//go:build linux

package pathid

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Filesystems whose inode numbers may not be stable. FUSE is included
// since sshfs and rclone mounts report only the generic FUSE magic.
var networkFSMagic = map[uint32]bool{
	uint32(unix.NFS_SUPER_MAGIC):  true,
	uint32(unix.SMB_SUPER_MAGIC):  true,
	uint32(unix.SMB2_SUPER_MAGIC): true,
	uint32(unix.CIFS_SUPER_MAGIC): true,
	uint32(unix.AFS_SUPER_MAGIC):  true,
	uint32(unix.CODA_SUPER_MAGIC): true,
	uint32(unix.CEPH_SUPER_MAGIC): true,
	uint32(unix.V9FS_MAGIC):       true,
	uint32(unix.FUSE_SUPER_MAGIC): true,
}

// isNetworkFS reports whether path lives on a network filesystem. A path
// that does not exist yet is judged by its parent directory.
func isNetworkFS(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
			return false
		}
	}
	return isNetworkFSType(uint32(st.Type))
}

func isNetworkFSType(magic uint32) bool {
	return networkFSMagic[magic]
}
