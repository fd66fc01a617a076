//go:build !unix

package pathid

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("path identity is not supported on this platform")

func statIdentity(path string) (FileIdentity, error) {
	if _, err := os.Stat(path); err != nil {
		return FileIdentity{}, err
	}
	return FileIdentity{}, errUnsupported
}

// VerifyAndOpen is not supported on this platform and always fails.
func VerifyAndOpen(ap *ApprovedPath, flags int) (*os.File, error) {
	path := ""
	if ap != nil {
		path = ap.UserPath
	}
	return nil, verifyErr(CodeOpen, path, errUnsupported)
}
