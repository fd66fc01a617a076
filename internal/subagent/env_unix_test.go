//go:build unix

package subagent

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ppiankov/toolgate/internal/model"
)

func TestFromEnvUnset(t *testing.T) {
	t.Setenv(EnvFDs, "")
	ch, err := FromEnv()
	if err != nil || ch != nil {
		t.Fatalf("FromEnv() = %v, %v; want nil, nil", ch, err)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	for _, v := range []string{"3", "a,b", "1,2", "900,901"} {
		t.Setenv(EnvFDs, v)
		if ch, err := FromEnv(); err == nil {
			ch.Close()
			t.Errorf("FromEnv(%q) should fail", v)
		}
	}
}

func TestFromEnvInherited(t *testing.T) {
	p, err := NewPipes()
	if err != nil {
		t.Fatalf("NewPipes: %v", err)
	}
	defer p.Close()
	parent := p.ParentEnd()

	// Stand-ins for the descriptors a child inherits through ExtraFiles.
	rfd, err := unix.Dup(int(p.respR.Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	wfd, err := unix.Dup(int(p.reqW.Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	t.Setenv(EnvFDs, fmt.Sprintf("%d,%d", rfd, wfd))

	child, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	defer child.Close()
	if _, ok := os.LookupEnv(EnvFDs); ok {
		t.Error("FromEnv should clear the variable")
	}

	go func() {
		var req Request
		if err := ReadFrame(parent.Requests, &req); err == nil {
			WriteFrame(parent.Responses, Response{RequestID: req.RequestID, Result: model.ResultAllowed})
		}
	}()
	client := NewClient(child)
	client.SetTimeout(2 * time.Second)
	if got := client.Request(context.Background(), shellCall("ls")); got != model.ResultAllowed {
		t.Errorf("got %s, want allowed", got)
	}
}
