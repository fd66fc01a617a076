// Package prompt asks the user to approve gated tool calls, one at a
// time or as a batch, with single-keypress answers.
package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/pathid"
	"github.com/ppiankov/toolgate/internal/policy"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"

	keyCtrlC = 3
	keyCtrlD = 4

	singleDetailMax = 60
	batchArgMax     = 45

	secondDigitWait = 500 * time.Millisecond
)

// Prompter renders approval prompts on a terminal.
type Prompter struct {
	term   Terminal
	policy *policy.Policy
	log    *logger.Entry
}

// New returns a prompter. A nil terminal behaves as non-interactive.
func New(term Terminal, p *policy.Policy) *Prompter {
	return &Prompter{term: term, policy: p, log: logger.Named("prompt")}
}

// Interactive reports whether prompts can be shown.
func (pr *Prompter) Interactive() bool {
	return pr.term != nil && pr.term.Interactive()
}

// Single asks about one call. For file tools the target path is captured
// before asking and returned with a permitting result, so the caller can
// verify it at use time.
func (pr *Prompter) Single(ctx context.Context, call model.ToolCall) (model.Result, *pathid.ApprovedPath) {
	res, ap, _ := pr.Ask(ctx, call)
	return res, ap
}

// Ask is Single plus the capture error for a file call whose target
// cannot be bound. Such calls are denied without asking.
func (pr *Prompter) Ask(ctx context.Context, call model.ToolCall) (model.Result, *pathid.ApprovedPath, error) {
	if !pr.Interactive() {
		return model.ResultNonInteractiveDenied, nil, nil
	}

	cat := pr.policy.Categorize(call.Name)
	var command, path string
	var ap *pathid.ApprovedPath
	switch {
	case cat == model.Shell:
		command = call.Command()
	case cat.IsFile():
		path = call.Path()
		var err error
		if ap, err = pr.capture(call); err != nil {
			fmt.Fprintf(pr.term, "\n%s: cannot approve %s: %s\n", toolName(call), truncateHead(path, singleDetailMax), pathid.CodeOf(err).Message())
			return model.ResultDenied, nil, err
		}
	}

	for {
		fmt.Fprint(pr.term, "\n")
		pr.showSingle(call, command, path)

		key, err := pr.term.ReadKey(ctx)
		fmt.Fprint(pr.term, "\n")
		if err != nil {
			return model.ResultAborted, nil, nil
		}

		switch lower(key) {
		case 'y':
			pr.policy.Limiter().Reset(call.Name)
			return model.ResultAllowed, ap, nil
		case 'n':
			return model.ResultDenied, nil, nil
		case 'a':
			pr.policy.Limiter().Reset(call.Name)
			return model.ResultAllowedAlways, ap, nil
		case '?':
			pr.showDetails(call, ap)
			if _, err := pr.term.ReadKey(ctx); err != nil {
				return model.ResultAborted, nil, nil
			}
		case keyCtrlC, keyCtrlD:
			return model.ResultAborted, nil, nil
		default:
			fmt.Fprint(pr.term, "Invalid input. Press y, n, a, or ? for details.\n")
		}
	}
}

// Batch asks about several calls at once. y and n settle every pending
// call; a digit drills into one call with the single prompt.
func (pr *Prompter) Batch(ctx context.Context, calls []model.ToolCall) (model.Result, []model.Result, []*pathid.ApprovedPath) {
	n := len(calls)
	results := make([]model.Result, n)
	paths := make([]*pathid.ApprovedPath, n)
	for i := range results {
		results[i] = model.ResultDenied
	}
	if n == 0 {
		return model.ResultDenied, results, paths
	}
	if !pr.Interactive() {
		for i := range results {
			results[i] = model.ResultNonInteractiveDenied
		}
		return model.ResultNonInteractiveDenied, results, paths
	}

	pending := make([]bool, n)
	statuses := make([]byte, n)
	for i := range pending {
		pending[i] = true
		statuses[i] = ' '
	}
	remaining := n

	for {
		fmt.Fprint(pr.term, "\n")
		pr.showBatch(calls, statuses, remaining < n)

		key, err := pr.term.ReadKey(ctx)
		fmt.Fprint(pr.term, "\n")
		if err != nil {
			return model.ResultAborted, nil, nil
		}

		switch k := lower(key); {
		case k == 'y':
			overall := model.ResultAllowed
			for i, c := range calls {
				if !pending[i] {
					continue
				}
				ap, err := pr.capture(c)
				if err != nil {
					results[i], overall = model.ResultDenied, model.ResultDenied
					continue
				}
				results[i], paths[i] = model.ResultAllowed, ap
				pr.policy.Limiter().Reset(c.Name)
			}
			return overall, results, paths

		case k == 'n':
			for i := range calls {
				if pending[i] {
					results[i] = model.ResultDenied
				}
			}
			return model.ResultDenied, results, paths

		case k >= '1' && k <= '9':
			num := int(k - '0')
			if n > 9 {
				next, ok, err := pr.term.ReadKeyTimeout(ctx, secondDigitWait)
				if err != nil {
					return model.ResultAborted, nil, nil
				}
				if ok && next >= '0' && next <= '9' {
					num = num*10 + int(next-'0')
				}
			}
			if num < 1 || num > n {
				fmt.Fprintf(pr.term, "Invalid operation number. Enter 1-%d.\n", n)
				continue
			}
			idx := num - 1
			if !pending[idx] {
				fmt.Fprintf(pr.term, "Operation %d already processed.\n", num)
				continue
			}

			res, ap := pr.Single(ctx, calls[idx])
			if res == model.ResultAborted {
				return model.ResultAborted, nil, nil
			}
			results[idx], paths[idx] = res, ap
			pending[idx] = false
			remaining--
			if res.Permits() {
				statuses[idx] = '+'
			} else {
				statuses[idx] = '-'
			}
			if remaining == 0 {
				return settled(results), results, paths
			}

		case k == keyCtrlC || k == keyCtrlD:
			return model.ResultAborted, nil, nil

		default:
			fmt.Fprintf(pr.term, "Invalid input. Press y, n, or 1-%d.\n", n)
		}
	}
}

// settled folds individually reviewed results: any denial denies the
// batch, unanimous allow-always allows always.
func settled(results []model.Result) model.Result {
	always := true
	for _, r := range results {
		if r == model.ResultDenied {
			return model.ResultDenied
		}
		if r != model.ResultAllowedAlways {
			always = false
		}
	}
	if always {
		return model.ResultAllowedAlways
	}
	return model.ResultAllowed
}

// capture binds a file call's target. Calls without a path have nothing
// to bind.
func (pr *Prompter) capture(call model.ToolCall) (*pathid.ApprovedPath, error) {
	if !pr.policy.Categorize(call.Name).IsFile() {
		return nil, nil
	}
	path := call.Path()
	if path == "" {
		return nil, nil
	}
	ap, err := pathid.Capture(path)
	if err != nil {
		pr.log.WithField("path", path).WithField("code", string(pathid.CodeOf(err))).Warn("cannot capture path; denying")
		return nil, err
	}
	return ap, nil
}

func (pr *Prompter) showSingle(call model.ToolCall, command, path string) {
	var detail string
	switch {
	case command != "":
		detail = truncateTail(command, singleDetailMax)
	case path != "":
		detail = truncateHead(path, singleDetailMax)
	default:
		detail = truncateTail(call.Arguments, singleDetailMax)
	}

	fmt.Fprintf(pr.term, "\r\033[K● %s", toolName(call))
	if detail != "" {
		fmt.Fprintf(pr.term, "%s %s%s", ansiDim, detail, ansiReset)
	}
	fmt.Fprint(pr.term, "\n  └─ Allow? [y/n/a/?] ")
}

func (pr *Prompter) showDetails(call model.ToolCall, ap *pathid.ApprovedPath) {
	name := toolName(call)
	fmt.Fprintf(pr.term, "\n● %s details\n", name)
	fmt.Fprintf(pr.term, "  ├─ tool: %s\n", name)
	if call.Arguments != "" {
		fmt.Fprintf(pr.term, "  ├─ args:%s %s%s\n", ansiDim, call.Arguments, ansiReset)
	}
	if ap != nil && ap.ResolvedPath != "" {
		state := "new"
		if ap.Existed {
			state = "exists"
		}
		fmt.Fprintf(pr.term, "  ├─ path:%s %s (%s)%s\n", ansiDim, ap.ResolvedPath, state, ansiReset)
	}
	fmt.Fprintf(pr.term, "  └─%s Press any key...%s\n", ansiDim, ansiReset)
}

func (pr *Prompter) showBatch(calls []model.ToolCall, statuses []byte, showStatus bool) {
	n := len(calls)
	fmt.Fprintf(pr.term, "\r\033[K● %d operations\n", n)
	for i, c := range calls {
		connector := "├─"
		if i == n-1 {
			connector = "└─"
		}
		preview := ""
		if c.Arguments != "" {
			preview = " " + truncateTail(c.Arguments, batchArgMax)
		}
		if showStatus && statuses[i] != ' ' {
			fmt.Fprintf(pr.term, "  %s [%c] %s%s%s%s\n", connector, statuses[i], toolName(c), ansiDim, preview, ansiReset)
		} else {
			fmt.Fprintf(pr.term, "  %s %s%s%s%s\n", connector, toolName(c), ansiDim, preview, ansiReset)
		}
	}
	fmt.Fprintf(pr.term, "  └─ Allow all? [y/n/1-%d] ", n)
}

func toolName(call model.ToolCall) string {
	if call.Name == "" {
		return "unknown"
	}
	return call.Name
}

// truncateTail keeps the start of s.
func truncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateHead keeps the end of s, where a path's file name is.
func truncateHead(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-(max-3):]
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
