package pathid

import (
	"errors"
	"fmt"
)

// Code classifies a verification failure.
type Code string

const (
	CodeOK            Code = "OK"
	CodeSymlink       Code = "SYMLINK"
	CodeDeleted       Code = "DELETED"
	CodeOpen          Code = "OPEN"
	CodeStat          Code = "STAT"
	CodeInodeMismatch Code = "INODE_MISMATCH"
	CodeParent        Code = "PARENT"
	CodeParentChanged Code = "PARENT_CHANGED"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeCreate        Code = "CREATE"
	CodeInvalidPath   Code = "INVALID_PATH"
	CodeResolve       Code = "RESOLVE"
	CodeNetworkFS     Code = "NETWORK_FS"
)

var messages = map[Code]string{
	CodeOK:            "Path verified successfully",
	CodeSymlink:       "Path is a symlink (not allowed for security)",
	CodeDeleted:       "File was deleted after approval",
	CodeOpen:          "Failed to open file",
	CodeStat:          "Failed to get file information",
	CodeInodeMismatch: "File changed since approval (inode mismatch)",
	CodeParent:        "Cannot access parent directory",
	CodeParentChanged: "Parent directory changed since approval",
	CodeAlreadyExists: "File already exists",
	CodeCreate:        "Failed to create file",
	CodeInvalidPath:   "Invalid or malformed path",
	CodeResolve:       "Failed to resolve path",
	CodeNetworkFS:     "Network filesystem detected, verification unreliable",
}

// Message returns the human-readable text for c.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "Unknown verification error"
}

// ErrorType maps c to the discriminator used in JSON error payloads.
func ErrorType(c Code) string {
	switch c {
	case CodeSymlink:
		return "symlink_rejected"
	case CodeInodeMismatch, CodeParentChanged:
		return "path_changed"
	case CodeDeleted:
		return "file_deleted"
	case CodeAlreadyExists:
		return "file_exists"
	case CodeNetworkFS:
		return "network_fs_warning"
	default:
		return "verification_failed"
	}
}

// VerifyError reports why a path failed capture or verification.
type VerifyError struct {
	Code Code
	Path string
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Code.Message(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Code.Message())
}

func (e *VerifyError) Unwrap() error { return e.Err }

func verifyErr(code Code, path string, err error) *VerifyError {
	return &VerifyError{Code: code, Path: path, Err: err}
}

// CodeOf extracts the Code from err. nil yields CodeOK; errors that are
// not a *VerifyError yield CodeOpen.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return CodeOpen
}
