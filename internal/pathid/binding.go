package pathid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrConsumed is returned once a binding has been used.
var ErrConsumed = errors.New("approved path already consumed")

// Binding ties one approved path to one tool execution. The first open
// or Release consumes it.
type Binding struct {
	mu       sync.Mutex
	ap       *ApprovedPath
	consumed bool
}

// Bind wraps ap for a single use.
func Bind(ap *ApprovedPath) *Binding {
	return &Binding{ap: ap}
}

// Path returns the bound path, or nil once consumed.
func (b *Binding) Path() *ApprovedPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return nil
	}
	return b.ap
}

// OpenRead opens the approved file read-only.
func (b *Binding) OpenRead(path string) (*os.File, error) {
	return b.open(path, os.O_RDONLY)
}

// OpenWrite opens the approved file for writing, truncating an existing
// file or creating a new one.
func (b *Binding) OpenWrite(path string) (*os.File, error) {
	return b.open(path, os.O_WRONLY|os.O_TRUNC)
}

// OpenAppend opens the approved file for appending.
func (b *Binding) OpenAppend(path string) (*os.File, error) {
	return b.open(path, os.O_WRONLY|os.O_APPEND)
}

// Release consumes the binding without opening anything.
func (b *Binding) Release() *ApprovedPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return nil
	}
	b.consumed = true
	return b.ap
}

func (b *Binding) open(path string, flags int) (*os.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ap == nil {
		return nil, verifyErr(CodeInvalidPath, path, nil)
	}
	if b.consumed {
		return nil, ErrConsumed
	}
	if !b.covers(path) {
		return nil, fmt.Errorf("path %q was not approved (approved %q)", path, b.ap.UserPath)
	}
	b.consumed = true
	return VerifyAndOpen(b.ap, flags)
}

func (b *Binding) covers(path string) bool {
	if path == b.ap.UserPath {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if abs == b.ap.ResolvedPath {
		return true
	}
	userAbs, err := filepath.Abs(b.ap.UserPath)
	return err == nil && abs == userAbs
}
