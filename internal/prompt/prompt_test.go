package prompt

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/cmdguard"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/pathid"
	"github.com/ppiankov/toolgate/internal/policy"
)

// fakeTerminal replays scripted keys. ReadKey fails with io.EOF once the
// script runs out; ReadKeyTimeout reports a timeout instead.
type fakeTerminal struct {
	bytes.Buffer
	keys        []byte
	interactive bool
}

func (f *fakeTerminal) ReadKey(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(f.keys) == 0 {
		return 0, io.EOF
	}
	k := f.keys[0]
	f.keys = f.keys[1:]
	return k, nil
}

func (f *fakeTerminal) ReadKeyTimeout(ctx context.Context, _ time.Duration) (byte, bool, error) {
	if len(f.keys) == 0 {
		return 0, false, nil
	}
	k, err := f.ReadKey(ctx)
	return k, err == nil, err
}

func (f *fakeTerminal) Interactive() bool { return f.interactive }

func newTestPrompter(t *testing.T, keys string) (*Prompter, *fakeTerminal, *policy.Policy) {
	t.Helper()
	p := policy.Default()
	p.SetShellType(cmdguard.ShellPOSIX)
	term := &fakeTerminal{keys: []byte(keys), interactive: true}
	return New(term, p), term, p
}

func shellCall(cmd string) model.ToolCall {
	return model.ToolCall{Name: "shell", Arguments: `{"command":"` + cmd + `"}`}
}

func TestSingleKeys(t *testing.T) {
	tests := []struct {
		keys string
		want model.Result
	}{
		{"y", model.ResultAllowed},
		{"Y", model.ResultAllowed},
		{"n", model.ResultDenied},
		{"a", model.ResultAllowedAlways},
		{"\x03", model.ResultAborted},
		{"\x04", model.ResultAborted},
		{"", model.ResultAborted},
		{"xzy", model.ResultAllowed},
		{"?.n", model.ResultDenied},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.keys, "\x03", "^C"), func(t *testing.T) {
			pr, _, _ := newTestPrompter(t, tt.keys)
			got, _ := pr.Single(context.Background(), shellCall("make test"))
			if got != tt.want {
				t.Errorf("Single = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSingleRendering(t *testing.T) {
	pr, term, _ := newTestPrompter(t, "qn")
	pr.Single(context.Background(), shellCall("git push origin main"))
	out := term.String()
	for _, want := range []string{
		"● shell",
		"git push origin main",
		"  └─ Allow? [y/n/a/?] ",
		"Invalid input. Press y, n, a, or ? for details.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSingleTruncation(t *testing.T) {
	long := strings.Repeat("a", 70)
	pr, term, _ := newTestPrompter(t, "n")
	pr.Single(context.Background(), shellCall(long))
	if !strings.Contains(term.String(), strings.Repeat("a", 57)+"...") {
		t.Errorf("expected tail truncation:\n%s", term.String())
	}

	dir := t.TempDir()
	path := filepath.Join(dir, strings.Repeat("d", 40), strings.Repeat("f", 30)+".txt")
	pr, term, _ = newTestPrompter(t, "n")
	pr.Single(context.Background(), model.ToolCall{Name: "write_file", Arguments: `{"path":"` + path + `"}`})
	want := "..." + path[len(path)-57:]
	if !strings.Contains(term.String(), want) {
		t.Errorf("expected head truncation %q:\n%s", want, term.String())
	}
}

func TestSingleDetails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	pr, term, _ := newTestPrompter(t, "? y")
	res, ap := pr.Single(context.Background(), model.ToolCall{Name: "write_file", Arguments: `{"path":"` + path + `"}`})
	if res != model.ResultAllowed {
		t.Fatalf("result = %s", res)
	}
	if ap == nil || !ap.Existed {
		t.Fatalf("expected captured existing path, got %+v", ap)
	}
	out := term.String()
	for _, want := range []string{"● write_file details", "  ├─ tool: write_file", "  ├─ args:", "(exists)", "Press any key..."} {
		if !strings.Contains(out, want) {
			t.Errorf("details missing %q:\n%s", want, out)
		}
	}
}

func TestSingleCapturesNewPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.txt")
	pr, _, _ := newTestPrompter(t, "a")
	res, ap := pr.Single(context.Background(), model.ToolCall{Name: "write_file", Arguments: `{"path":"` + path + `"}`})
	if res != model.ResultAllowedAlways {
		t.Fatalf("result = %s", res)
	}
	if ap == nil || ap.Existed {
		t.Fatalf("expected captured new path, got %+v", ap)
	}
}

func TestAskDeniesUncapturablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "new.txt")
	pr, term, _ := newTestPrompter(t, "y")
	res, ap, err := pr.Ask(context.Background(), model.ToolCall{Name: "write_file", Arguments: `{"path":"` + path + `"}`})
	if res != model.ResultDenied || ap != nil {
		t.Fatalf("got %s, %+v; want denied without a path", res, ap)
	}
	if pathid.CodeOf(err) != pathid.CodeParent {
		t.Errorf("code = %s, want %s", pathid.CodeOf(err), pathid.CodeParent)
	}
	if len(term.keys) != 1 {
		t.Error("no key should be read for an uncapturable path")
	}
	if !strings.Contains(term.String(), "Cannot access parent directory") {
		t.Errorf("expected the reason on the terminal:\n%s", term.String())
	}
}

func TestBatchAllowDeniesUncapturablePath(t *testing.T) {
	dir := t.TempDir()
	calls := []model.ToolCall{
		{Name: "write_file", Arguments: `{"path":"` + filepath.Join(dir, "missing", "a.txt") + `"}`},
		shellCall("ls"),
	}
	pr, _, _ := newTestPrompter(t, "y")
	res, results, paths := pr.Batch(context.Background(), calls)
	if res != model.ResultDenied {
		t.Errorf("Batch = %s, want denied", res)
	}
	if results[0] != model.ResultDenied || paths[0] != nil {
		t.Errorf("item 0 = %s, %+v", results[0], paths[0])
	}
	if results[1] != model.ResultAllowed {
		t.Errorf("item 1 = %s, want allowed", results[1])
	}
}

func TestSingleDeniedReturnsNoPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.txt")
	pr, _, _ := newTestPrompter(t, "n")
	_, ap := pr.Single(context.Background(), model.ToolCall{Name: "write_file", Arguments: `{"path":"` + path + `"}`})
	if ap != nil {
		t.Error("denied prompt should not hand out a path")
	}
}

func TestSingleResetsLimiter(t *testing.T) {
	pr, _, p := newTestPrompter(t, "y")
	for i := 0; i < 4; i++ {
		p.Limiter().RecordDenial("shell")
	}
	pr.Single(context.Background(), shellCall("ls"))
	if p.Limiter().IsLimited("shell") {
		t.Error("approving should reset the denial tracker")
	}
}

func TestSingleNonInteractive(t *testing.T) {
	pr, term, _ := newTestPrompter(t, "y")
	term.interactive = false
	if got, _ := pr.Single(context.Background(), shellCall("ls")); got != model.ResultNonInteractiveDenied {
		t.Errorf("Single = %s, want non_interactive_denied", got)
	}
	if got, _ := New(nil, policy.Default()).Single(context.Background(), shellCall("ls")); got != model.ResultNonInteractiveDenied {
		t.Errorf("nil terminal: Single = %s", got)
	}
}

func TestSingleContextCancelled(t *testing.T) {
	pr, _, _ := newTestPrompter(t, "y")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got, _ := pr.Single(ctx, shellCall("ls")); got != model.ResultAborted {
		t.Errorf("Single = %s, want aborted", got)
	}
}

func batchCalls(n int) []model.ToolCall {
	calls := make([]model.ToolCall, n)
	for i := range calls {
		calls[i] = shellCall("echo " + strings.Repeat("x", i+1))
	}
	return calls
}

func TestBatchAllowAll(t *testing.T) {
	pr, term, _ := newTestPrompter(t, "y")
	res, results, _ := pr.Batch(context.Background(), batchCalls(3))
	if res != model.ResultAllowed {
		t.Fatalf("Batch = %s", res)
	}
	for i, r := range results {
		if r != model.ResultAllowed {
			t.Errorf("results[%d] = %s", i, r)
		}
	}
	out := term.String()
	for _, want := range []string{"● 3 operations", "  ├─ shell", "  └─ shell", "  └─ Allow all? [y/n/1-3] "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBatchDenyAll(t *testing.T) {
	pr, _, _ := newTestPrompter(t, "n")
	res, results, _ := pr.Batch(context.Background(), batchCalls(2))
	if res != model.ResultDenied || results[0] != model.ResultDenied || results[1] != model.ResultDenied {
		t.Errorf("Batch = %s %v", res, results)
	}
}

func TestBatchIndividual(t *testing.T) {
	// Approve #2, deny #1, then allow the rest.
	pr, term, _ := newTestPrompter(t, "2y1ny")
	res, results, _ := pr.Batch(context.Background(), batchCalls(3))
	if res != model.ResultAllowed {
		t.Fatalf("Batch = %s", res)
	}
	want := []model.Result{model.ResultDenied, model.ResultAllowed, model.ResultAllowed}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %s, want %s", i, results[i], want[i])
		}
	}
	out := term.String()
	if !strings.Contains(out, "[+] shell") || !strings.Contains(out, "[-] shell") {
		t.Errorf("expected status markers:\n%s", out)
	}
}

func TestBatchAllReviewed(t *testing.T) {
	tests := []struct {
		keys string
		want model.Result
	}{
		{"1a2a", model.ResultAllowedAlways},
		{"1a2y", model.ResultAllowed},
		{"1y2n", model.ResultDenied},
	}
	for _, tt := range tests {
		pr, _, _ := newTestPrompter(t, tt.keys)
		res, _, _ := pr.Batch(context.Background(), batchCalls(2))
		if res != tt.want {
			t.Errorf("keys %q: Batch = %s, want %s", tt.keys, res, tt.want)
		}
	}
}

func TestBatchErrors(t *testing.T) {
	pr, term, _ := newTestPrompter(t, "1y1" + "5" + "q" + "n")
	res, _, _ := pr.Batch(context.Background(), batchCalls(3))
	if res != model.ResultDenied {
		t.Fatalf("Batch = %s", res)
	}
	out := term.String()
	for _, want := range []string{
		"Operation 1 already processed.\n",
		"Invalid operation number. Enter 1-3.\n",
		"Invalid input. Press y, n, or 1-3.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBatchTwoDigitSelection(t *testing.T) {
	calls := batchCalls(12)
	pr, _, _ := newTestPrompter(t, "11ny")
	_, results, _ := pr.Batch(context.Background(), calls)
	if results[10] != model.ResultDenied {
		t.Errorf("operation 11 should be the one denied, got %s", results[10])
	}
	if results[0] != model.ResultAllowed {
		t.Errorf("operation 1 should be allowed by y, got %s", results[0])
	}
}

func TestBatchSingleDigitTimeout(t *testing.T) {
	// With 12 items, "3" followed by nothing falls back to 3 after the
	// second-digit wait; the script then runs dry and aborts.
	calls := batchCalls(12)
	pr, term, _ := newTestPrompter(t, "3")
	res, _, _ := pr.Batch(context.Background(), calls)
	if res != model.ResultAborted {
		t.Errorf("Batch = %s, want aborted when keys run out", res)
	}
	if !strings.Contains(term.String(), "echo xxx") {
		t.Errorf("expected operation 3 to be prompted:\n%s", term.String())
	}
}

func TestBatchAbort(t *testing.T) {
	pr, _, _ := newTestPrompter(t, "1\x03")
	res, results, paths := pr.Batch(context.Background(), batchCalls(2))
	if res != model.ResultAborted || results != nil || paths != nil {
		t.Errorf("Batch = %s %v %v", res, results, paths)
	}
}

func TestBatchNonInteractive(t *testing.T) {
	pr, term, _ := newTestPrompter(t, "y")
	term.interactive = false
	res, results, _ := pr.Batch(context.Background(), batchCalls(2))
	if res != model.ResultNonInteractiveDenied {
		t.Fatalf("Batch = %s", res)
	}
	for _, r := range results {
		if r != model.ResultNonInteractiveDenied {
			t.Errorf("item = %s", r)
		}
	}
}

func TestBatchAllowCapturesPaths(t *testing.T) {
	dir := t.TempDir()
	calls := []model.ToolCall{
		{Name: "write_file", Arguments: `{"path":"` + filepath.Join(dir, "a.txt") + `"}`},
		shellCall("ls"),
	}
	pr, _, _ := newTestPrompter(t, "y")
	_, _, paths := pr.Batch(context.Background(), calls)
	if paths[0] == nil {
		t.Error("expected file path captured on allow-all")
	}
	if paths[1] != nil {
		t.Error("shell call has no path")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncateTail("abcdef", 6); got != "abcdef" {
		t.Errorf("truncateTail = %q", got)
	}
	if got := truncateTail("abcdefg", 6); got != "abc..." {
		t.Errorf("truncateTail = %q", got)
	}
	if got := truncateHead("/a/b/c/d", 6); got != "...c/d" {
		t.Errorf("truncateHead = %q", got)
	}
}
