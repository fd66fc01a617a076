//go:build unix

package pathid

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func identityOf(st *unix.Stat_t) FileIdentity {
	return FileIdentity{dev: uint64(st.Dev), ino: uint64(st.Ino), valid: true}
}

func statIdentity(path string) (FileIdentity, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return FileIdentity{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return identityOf(&st), nil
}

// VerifyAndOpen opens the approved path and checks, on the open
// descriptor, that it is the approved file. An existing file is opened
// without following a final symlink. A new file is created exclusively
// relative to the verified parent directory. There is one attempt and no
// retry.
func VerifyAndOpen(ap *ApprovedPath, flags int) (*os.File, error) {
	if ap == nil {
		return nil, verifyErr(CodeInvalidPath, "", nil)
	}
	if ap.Existed {
		return openExisting(ap, flags)
	}
	return createNew(ap, flags)
}

func openExisting(ap *ApprovedPath, flags int) (*os.File, error) {
	fd, err := unix.Open(ap.UserPath, flags|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ELOOP), errors.Is(err, unix.EMLINK):
			return nil, verifyErr(CodeSymlink, ap.UserPath, err)
		case errors.Is(err, unix.ENOENT):
			return nil, verifyErr(CodeDeleted, ap.UserPath, err)
		default:
			return nil, verifyErr(CodeOpen, ap.UserPath, err)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, verifyErr(CodeStat, ap.UserPath, err)
	}
	if !identityOf(&st).Equal(ap.Identity) {
		unix.Close(fd)
		return nil, verifyErr(CodeInodeMismatch, ap.UserPath, nil)
	}
	return os.NewFile(uintptr(fd), ap.UserPath), nil
}

func createNew(ap *ApprovedPath, flags int) (*os.File, error) {
	dirfd, err := unix.Open(ap.ParentPath, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, verifyErr(CodeParent, ap.UserPath, err)
	}
	defer unix.Close(dirfd)

	var st unix.Stat_t
	if err := unix.Fstat(dirfd, &st); err != nil {
		return nil, verifyErr(CodeParent, ap.UserPath, err)
	}
	if !identityOf(&st).Equal(ap.ParentIdentity) {
		return nil, verifyErr(CodeParentChanged, ap.UserPath, nil)
	}

	base := filepath.Base(ap.ResolvedPath)
	fd, err := unix.Openat(dirfd, base, flags|unix.O_CREAT|unix.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o644)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, verifyErr(CodeAlreadyExists, ap.UserPath, err)
		}
		return nil, verifyErr(CodeCreate, ap.UserPath, err)
	}
	return os.NewFile(uintptr(fd), ap.ResolvedPath), nil
}
