package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Terminal is the keypress-level interface the prompts run against.
type Terminal interface {
	io.Writer
	// ReadKey blocks for one keypress.
	ReadKey(ctx context.Context) (byte, error)
	// ReadKeyTimeout waits at most d; ok is false when nothing was pressed.
	ReadKeyTimeout(ctx context.Context, d time.Duration) (key byte, ok bool, err error)
	// Interactive reports whether a human is on the other end.
	Interactive() bool
}

type keyResult struct {
	key byte
	err error
}

// TTY reads single keypresses from a terminal. Raw mode is held only
// for the duration of each read.
type TTY struct {
	in  *os.File
	out *os.File

	mu      sync.Mutex
	pending chan keyResult // outstanding read carried over from a cancelled call
}

// NewTTY returns a terminal reading from in and drawing on out.
func NewTTY(in, out *os.File) *TTY {
	return &TTY{in: in, out: out}
}

func (t *TTY) Write(p []byte) (int, error) { return t.out.Write(p) }

// Interactive reports whether in is a terminal.
func (t *TTY) Interactive() bool {
	fd := t.in.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ReadKey implements Terminal.
func (t *TTY) ReadKey(ctx context.Context) (byte, error) {
	key, _, err := t.read(ctx, 0)
	return key, err
}

// ReadKeyTimeout implements Terminal.
func (t *TTY) ReadKeyTimeout(ctx context.Context, d time.Duration) (byte, bool, error) {
	return t.read(ctx, d)
}

func (t *TTY) read(ctx context.Context, timeout time.Duration) (byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := int(t.in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return 0, false, fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, state)

	ch := t.startRead()
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-ch:
		t.pending = nil
		if r.err != nil {
			return 0, false, r.err
		}
		return r.key, true, nil
	case <-expired:
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

// startRead reuses a read left over from a timed-out or cancelled call so
// no keypress is lost.
func (t *TTY) startRead() chan keyResult {
	if t.pending != nil {
		return t.pending
	}
	ch := make(chan keyResult, 1)
	t.pending = ch
	go func() {
		var buf [1]byte
		n, err := t.in.Read(buf[:])
		if err == nil && n == 0 {
			err = io.EOF
		}
		ch <- keyResult{key: buf[0], err: err}
	}()
	return ch
}
