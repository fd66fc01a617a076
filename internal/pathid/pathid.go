// Package pathid pins the filesystem identity of a path at approval time
// and checks it again at use time, so a symlink swap or replacement in
// between is caught.
package pathid

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// FileIdentity identifies a file independently of its name. The zero
// value matches nothing.
type FileIdentity struct {
	dev   uint64
	ino   uint64
	valid bool
}

// Equal reports whether a and b are the same file.
func (a FileIdentity) Equal(b FileIdentity) bool {
	return a.valid && b.valid && a.dev == b.dev && a.ino == b.ino
}

// Valid reports whether the identity was captured.
func (a FileIdentity) Valid() bool { return a.valid }

func (a FileIdentity) String() string {
	if !a.valid {
		return "none"
	}
	return fmt.Sprintf("%d:%d", a.dev, a.ino)
}

// Identify returns the identity of the file path refers to, following
// symlinks.
func Identify(path string) (FileIdentity, error) {
	return statIdentity(path)
}

// ApprovedPath is a path as it was when the user approved it.
type ApprovedPath struct {
	UserPath     string
	ResolvedPath string
	Existed      bool
	Identity     FileIdentity

	ParentPath     string
	ParentIdentity FileIdentity

	NetworkFS bool
}

// Capture records the identity of path, or of its parent directory when
// path does not exist yet.
func Capture(path string) (*ApprovedPath, error) {
	if path == "" || strings.IndexByte(path, 0) >= 0 {
		return nil, verifyErr(CodeInvalidPath, path, nil)
	}

	ap := &ApprovedPath{UserPath: path}
	id, err := statIdentity(path)
	switch {
	case err == nil:
		resolved, err := canonical(path)
		if err != nil {
			return nil, verifyErr(CodeResolve, path, err)
		}
		ap.Existed = true
		ap.Identity = id
		ap.ResolvedPath = resolved
		ap.ParentPath = filepath.Dir(resolved)
		if pid, err := statIdentity(ap.ParentPath); err == nil {
			ap.ParentIdentity = pid
		}

	case errors.Is(err, fs.ErrNotExist):
		parent, err := canonical(filepath.Dir(path))
		if err != nil {
			return nil, verifyErr(CodeParent, path, err)
		}
		pid, err := statIdentity(parent)
		if err != nil {
			return nil, verifyErr(CodeParent, path, err)
		}
		ap.ParentPath = parent
		ap.ParentIdentity = pid
		ap.ResolvedPath = filepath.Join(parent, filepath.Base(path))

	default:
		return nil, verifyErr(CodeStat, path, err)
	}

	ap.NetworkFS = isNetworkFS(ap.ResolvedPath)
	return ap, nil
}

func canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// Verify re-stats the approved path and reports whether it still names
// the same file. It does not open anything; use VerifyAndOpen to close
// the window between check and use.
func Verify(ap *ApprovedPath) error {
	if ap == nil {
		return verifyErr(CodeInvalidPath, "", nil)
	}
	if ap.Existed {
		id, err := statIdentity(ap.ResolvedPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return verifyErr(CodeDeleted, ap.UserPath, err)
			}
			return verifyErr(CodeStat, ap.UserPath, err)
		}
		if !id.Equal(ap.Identity) {
			return verifyErr(CodeInodeMismatch, ap.UserPath, nil)
		}
		return nil
	}

	pid, err := statIdentity(ap.ParentPath)
	if err != nil {
		return verifyErr(CodeParent, ap.UserPath, err)
	}
	if !pid.Equal(ap.ParentIdentity) {
		return verifyErr(CodeParentChanged, ap.UserPath, nil)
	}
	return nil
}
