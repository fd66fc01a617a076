package subagent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// EnvFDs names the environment variable carrying the child's inherited
// descriptors as "r,w": r reads responses, w writes requests.
const EnvFDs = "TOOLGATE_APPROVAL_FDS"

// Channel is one side of an approval connection. On the parent side Requests
// is read and Responses is written; on the child side the roles are swapped.
type Channel struct {
	Requests  *os.File
	Responses *os.File
	PeerPID   int

	closeOnce sync.Once
	closeErr  error
}

// Close releases both descriptors. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.Requests != nil {
			errs = append(errs, c.Requests.Close())
		}
		if c.Responses != nil {
			errs = append(errs, c.Responses.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// Pipes holds both pipe pairs of a channel before they are split between
// parent and child.
type Pipes struct {
	reqR, reqW   *os.File
	respR, respW *os.File
}

// NewPipes creates the request and response pipes for one subagent.
func NewPipes() (*Pipes, error) {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}
	return &Pipes{reqR: reqR, reqW: reqW, respR: respR, respW: respW}, nil
}

// ParentEnd returns the side that reads requests and writes responses.
func (p *Pipes) ParentEnd() *Channel {
	return &Channel{Requests: p.reqR, Responses: p.respW}
}

// ChildEnd returns the side that writes requests and reads responses.
func (p *Pipes) ChildEnd() *Channel {
	return &Channel{Requests: p.reqW, Responses: p.respR, PeerPID: os.Getpid()}
}

// Prepare hands the child end to cmd as inherited descriptors and names them
// in the child's environment.
func (p *Pipes) Prepare(cmd *exec.Cmd) {
	base := 3 + len(cmd.ExtraFiles)
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.respR, p.reqW)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d,%d", EnvFDs, base, base+1))
}

// CloseChildEnd releases the parent's copies of the child's descriptors once
// the child has started.
func (p *Pipes) CloseChildEnd() error {
	return errors.Join(p.respR.Close(), p.reqW.Close())
}

// Close releases all four descriptors.
func (p *Pipes) Close() error {
	return errors.Join(p.reqR.Close(), p.reqW.Close(), p.respR.Close(), p.respW.Close())
}
