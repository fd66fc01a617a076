package approval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/toolgate/internal/pathid"
)

func TestPayloadJSON(t *testing.T) {
	tests := []struct {
		name string
		p    *ErrorPayload
		want string
	}{
		{
			"rate limited",
			RateLimitError("shell", 42),
			`{"error":"rate_limited","message":"Too many denied requests for shell tool. Wait 42 seconds before retrying.","tool":"shell","retry_after":42}`,
		},
		{
			"denied",
			DenialError("write_file"),
			`{"error":"operation_denied","message":"User denied permission to execute write_file","tool":"write_file","suggestion":"Ask the user to perform this operation manually, or request permission with explanation"}`,
		},
		{
			"protected",
			ProtectedFileError("/srv/app/.env"),
			`{"error":"protected_file","message":"Cannot modify protected configuration file","path":"/srv/app/.env"}`,
		},
		{
			"non-interactive",
			NonInteractiveError("shell", "shell"),
			`{"error":"non_interactive_gate","message":"Cannot execute shell operation without TTY for approval","tool":"shell","category":"shell","suggestion":"Use --yolo to bypass gates, or --allow-category=shell to allow this category in non-interactive mode"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.JSON(); got != tt.want {
				t.Errorf("JSON() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPayloadError(t *testing.T) {
	err := error(DenialError("shell"))
	if got := err.Error(); got != "operation_denied: User denied permission to execute shell" {
		t.Errorf("Error() = %q", got)
	}
}

func TestVerifyErrorPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ap, err := pathid.Capture(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	p := VerifyErrorPayload(pathid.Verify(ap))
	if p.Path != path || p.Type == "" || p.Message == "" {
		t.Fatalf("payload = %+v", p)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(p.JSON()), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["error"] != p.Type {
		t.Errorf("error field = %v", decoded["error"])
	}
}
