package approval

import (
	"context"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/redact"
	"github.com/ppiankov/toolgate/internal/subagent"
)

// HandleSubagent answers one request from a subagent. This gate's policy
// decides first: a deny category or a protected write is refused, an
// allowed category or an allowlist match is approved, and anything else is
// prompted on this process's terminal, or forwarded upward when this
// process is itself a subagent. An "allow always" answer installs the
// pattern in this gate's policy and reports it back; the subagent's own
// policy is not changed.
func (g *Gate) HandleSubagent(ctx context.Context, peer string, req subagent.Request) subagent.Response {
	call := req.Call()
	log := g.log.WithField("peer", peer).WithField("tool", call.Name)

	res := g.resolveSubagent(ctx, call, log)
	resp := subagent.Response{RequestID: req.RequestID, Result: res}
	if res == model.ResultAllowedAlways {
		if gen := g.install(call, g.policy.Categorize(call.Name)); gen != nil {
			resp.Pattern = gen.String()
		}
	}

	log.WithField("summary", redact.String(req.DisplaySummary)).WithField("result", res.String()).Info("subagent approval")
	g.record(peer, call, res, resp.Pattern)
	return resp
}

func (g *Gate) resolveSubagent(ctx context.Context, call model.ToolCall, log *logger.Entry) model.Result {
	if path, ok := g.protectedWrite(call); ok {
		log.WithField("path", path).Warn("blocked subagent write to protected file")
		return model.ResultDenied
	}
	switch g.policy.Decide(call) {
	case model.Allowed:
		return model.ResultAllowed
	case model.Denied:
		return model.ResultDenied
	}
	switch {
	case g.client != nil:
		log.Debug("forwarding subagent request to parent")
		return g.client.Request(ctx, call)
	case g.prompter != nil:
		res, _ := g.prompter.Single(ctx, call)
		return res
	}
	return model.ResultNonInteractiveDenied
}
