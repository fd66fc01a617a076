package cli

import (
	"runtime"
	"testing"

	"github.com/ppiankov/toolgate/internal/subagent"
)

func TestBuildInfo(t *testing.T) {
	info := buildInfo()
	if info.Name != "toolgate" || info.Version == "" {
		t.Errorf("info = %+v", info)
	}
	if info.Go != runtime.Version() {
		t.Errorf("go = %q, want %q", info.Go, runtime.Version())
	}
	if info.MaxFrame != subagent.MaxMessageSize || info.ApprovalEnv != subagent.EnvFDs {
		t.Errorf("approval channel fields = %d, %q", info.MaxFrame, info.ApprovalEnv)
	}
}
