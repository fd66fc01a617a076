// Package approval runs tool calls through the gate: rate limiting,
// policy decision, prompting or proxying, and the executor-side checks
// that follow an approval.
package approval

import (
	"context"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/pathid"
	"github.com/ppiankov/toolgate/internal/pattern"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/prompt"
	"github.com/ppiankov/toolgate/internal/protect"
	"github.com/ppiankov/toolgate/internal/redact"
	"github.com/ppiankov/toolgate/internal/subagent"
)

// Recorder persists decisions.
type Recorder interface {
	Record(audit.Entry) error
}

// Protector reports paths no tool may write.
type Protector interface {
	IsProtected(path string) bool
}

// Outcome is the result of gating one call. Path is set for permitted
// file calls whose target was captured at approval time. CaptureErr is set
// when a file call was denied because its target could not be captured.
type Outcome struct {
	Result     model.Result
	Path       *pathid.ApprovedPath
	Pattern    *pattern.Generated
	CaptureErr error
}

// Gate carries everything a gating decision needs.
type Gate struct {
	policy   *policy.Policy
	prompter *prompt.Prompter
	client   *subagent.Client
	recorder Recorder
	protect  Protector
	log      *logger.Entry
}

// Option configures a Gate.
type Option func(*Gate)

// WithClient routes prompts to a parent process.
func WithClient(c *subagent.Client) Option {
	return func(g *Gate) { g.client = c }
}

// WithRecorder persists every prompted or proxied decision.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// WithProtector replaces the default protected-file oracle.
func WithProtector(p Protector) Option {
	return func(g *Gate) { g.protect = p }
}

// New creates a gate. pr may be nil when no terminal is available.
func New(p *policy.Policy, pr *prompt.Prompter, opts ...Option) *Gate {
	g := &Gate{
		policy:   p,
		prompter: pr,
		protect:  protect.NewDefault(),
		log:      logger.Named("approval"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Policy returns the gate's policy.
func (g *Gate) Policy() *policy.Policy { return g.policy }

// Derive returns the gate for an in-process subagent: a derived policy,
// no terminal, and every prompt proxied through client.
func (g *Gate) Derive(client *subagent.Client) *Gate {
	return &Gate{
		policy:   g.policy.Derive(),
		client:   client,
		recorder: g.recorder,
		protect:  g.protect,
		log:      g.log,
	}
}

func (g *Gate) interactive() bool {
	return g.policy.Interactive() && g.prompter != nil && g.prompter.Interactive()
}

// Check decides one call, prompting or proxying when the policy requires
// approval.
func (g *Gate) Check(ctx context.Context, call model.ToolCall) Outcome {
	if g.policy.Limiter().IsLimited(call.Name) {
		return Outcome{Result: model.ResultRateLimited}
	}
	switch g.policy.Decide(call) {
	case model.Allowed:
		return Outcome{Result: model.ResultAllowed}
	case model.Denied:
		return Outcome{Result: model.ResultDenied}
	}
	return g.ask(ctx, call)
}

// ask resolves a call that requires approval.
func (g *Gate) ask(ctx context.Context, call model.ToolCall) Outcome {
	if g.client != nil {
		res := g.client.Request(ctx, call)
		g.record("", call, res, "")
		return Outcome{Result: res}
	}
	if !g.interactive() {
		return Outcome{Result: model.ResultNonInteractiveDenied}
	}
	res, ap, err := g.prompter.Ask(ctx, call)
	g.record("", call, res, "")
	return Outcome{Result: res, Path: ap, CaptureErr: err}
}

// Execute is the executor-side wrapper around Check. It enforces
// protected files, installs "allow always" patterns, re-verifies captured
// paths and tracks denials. A blocked call returns an *ErrorPayload; an
// interrupted prompt returns ErrAborted.
func (g *Gate) Execute(ctx context.Context, call model.ToolCall) (Outcome, error) {
	cat := g.policy.Categorize(call.Name)
	if path, ok := g.protectedWrite(call); ok {
		g.log.WithField("path", path).Warn("blocked write to protected file")
		return Outcome{Result: model.ResultDenied}, ProtectedFileError(path)
	}
	if !g.policy.Enabled() {
		return Outcome{Result: model.ResultAllowed}, nil
	}

	out := g.Check(ctx, call)
	log := g.log.WithField("tool", call.Name).WithField("result", out.Result.String())

	switch out.Result {
	case model.ResultAllowedAlways:
		out.Pattern = g.install(call, cat)
		fallthrough
	case model.ResultAllowed:
		if out.Path != nil && cat.IsFile() {
			if err := pathid.Verify(out.Path); err != nil {
				log.WithError(err).Warn("approved path changed before execution")
				return out, VerifyErrorPayload(err)
			}
		}
		log.Debug("call permitted")
		return out, nil

	case model.ResultDenied:
		if out.CaptureErr != nil {
			log.WithError(out.CaptureErr).Warn("target path could not be captured")
			return out, VerifyErrorPayload(out.CaptureErr)
		}
		g.policy.Limiter().RecordDenial(call.Name)
		log.Info("call denied")
		return out, DenialError(call.Name)

	case model.ResultRateLimited:
		return out, RateLimitError(call.Name, g.policy.Limiter().Remaining(call.Name))

	case model.ResultNonInteractiveDenied:
		log.Info("call needs approval but no terminal is available")
		return out, NonInteractiveError(call.Name, cat.String())

	case model.ResultAborted:
		return out, ErrAborted
	}

	log.Warn("unhandled approval result; denying")
	return Outcome{Result: model.ResultDenied}, DenialError(call.Name)
}

// protectedWrite reports the target of a file write that no tool may
// modify.
func (g *Gate) protectedWrite(call model.ToolCall) (string, bool) {
	if g.policy.Categorize(call.Name) != model.FileWrite {
		return "", false
	}
	path := call.Path()
	return path, path != "" && g.protect.IsProtected(path)
}

// install generates the allowlist entry for an "allow always" answer and
// applies it to the gate's policy.
func (g *Gate) install(call model.ToolCall, cat model.Category) *pattern.Generated {
	target, _ := g.policy.MatchTarget(call, cat)
	gen, err := pattern.GenerateWith(call, cat, pattern.Options{
		Shell:  g.policy.ShellType(),
		Target: target,
	})
	if err != nil {
		g.log.WithError(err).WithField("tool", call.Name).Warn("could not generate allowlist pattern")
		return nil
	}
	if err := pattern.Apply(g.policy, call.Name, gen); err != nil {
		g.log.WithError(err).WithField("tool", call.Name).Warn("could not apply allowlist pattern")
		return nil
	}
	g.log.WithField("tool", call.Name).WithField("pattern", gen.String()).Info("added allowlist entry")
	return gen
}

func (g *Gate) record(peer string, call model.ToolCall, res model.Result, pat string) {
	if g.recorder == nil {
		return
	}
	err := g.recorder.Record(audit.Entry{
		Peer:    peer,
		Tool:    call.Name,
		Summary: redact.String(subagent.Summary(call)),
		Result:  res.String(),
		Pattern: pat,
	})
	if err != nil {
		g.log.WithError(err).Warn("failed to record decision")
	}
}
