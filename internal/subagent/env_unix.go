//go:build unix

package subagent

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// FromEnv reconstructs the child end of a channel from the descriptors named
// in EnvFDs. It returns nil, nil when the process was not started by a
// supervisor. The variable is cleared so grandchildren do not misread it.
func FromEnv() (*Channel, error) {
	v, ok := os.LookupEnv(EnvFDs)
	if !ok || v == "" {
		return nil, nil
	}
	os.Unsetenv(EnvFDs)

	rs, ws, found := strings.Cut(v, ",")
	if !found {
		return nil, fmt.Errorf("%s: want r,w got %q", EnvFDs, v)
	}
	rfd, err := inheritedFD(rs)
	if err != nil {
		return nil, err
	}
	wfd, err := inheritedFD(ws)
	if err != nil {
		return nil, err
	}
	if rfd == wfd {
		return nil, fmt.Errorf("%s: read and write descriptors are both %d", EnvFDs, rfd)
	}
	return &Channel{
		Requests:  os.NewFile(uintptr(wfd), "approval-requests"),
		Responses: os.NewFile(uintptr(rfd), "approval-responses"),
		PeerPID:   os.Getppid(),
	}, nil
}

func inheritedFD(s string) (int, error) {
	fd, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || fd < 3 {
		return 0, fmt.Errorf("%s: invalid descriptor %q", EnvFDs, s)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return 0, fmt.Errorf("%s: descriptor %d not open: %w", EnvFDs, fd, err)
	}
	unix.CloseOnExec(fd)
	// Non-blocking descriptors are registered with the runtime poller, which
	// makes read deadlines work on them.
	if err := unix.SetNonblock(fd, true); err != nil {
		return 0, fmt.Errorf("%s: set non-blocking on %d: %w", EnvFDs, fd, err)
	}
	return fd, nil
}
