package approval

import (
	"context"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/pathid"
	"github.com/ppiankov/toolgate/internal/pattern"
)

// BatchOutcome holds per-call results in input order. Patterns holds the
// entries installed for calls answered with "allow always".
type BatchOutcome struct {
	Result   model.Result
	Results  []model.Result
	Paths    []*pathid.ApprovedPath
	Patterns []*pattern.Generated
}

// CheckBatch decides several calls from one model turn, prompting once
// for everything that needs approval.
//
// The overall result is Aborted if the prompt was interrupted, else
// RateLimited if any call was rate limited, else Denied if any call was
// denied, else the prompt's answer.
func (g *Gate) CheckBatch(ctx context.Context, calls []model.ToolCall) BatchOutcome {
	n := len(calls)
	out := BatchOutcome{
		Result:   model.ResultDenied,
		Results:  make([]model.Result, n),
		Paths:    make([]*pathid.ApprovedPath, n),
		Patterns: make([]*pattern.Generated, n),
	}
	if n == 0 {
		return out
	}

	var pending []int
	anyLimited, anyDenied := false, false
	for i, c := range calls {
		if g.policy.Limiter().IsLimited(c.Name) {
			out.Results[i] = model.ResultRateLimited
			anyLimited = true
			continue
		}
		switch g.policy.Decide(c) {
		case model.Allowed:
			out.Results[i] = model.ResultAllowed
		case model.RequiresApproval:
			pending = append(pending, i)
		default:
			out.Results[i] = model.ResultDenied
			anyDenied = true
		}
	}

	if len(pending) == 0 {
		switch {
		case anyLimited:
			out.Result = model.ResultRateLimited
		case anyDenied:
			out.Result = model.ResultDenied
		default:
			out.Result = model.ResultAllowed
		}
		return out
	}

	// A subagent has no terminal; each pending call is proxied on its own.
	if g.client != nil {
		var results []model.Result
		for _, i := range pending {
			res := g.client.Request(ctx, calls[i])
			g.record("", calls[i], res, "")
			out.Results[i] = res
			results = append(results, res)
		}
		out.Result = overall(proxied(results), anyLimited, anyDenied)
		g.installBatch(calls, pending, &out)
		return out
	}

	if !g.interactive() {
		for _, i := range pending {
			out.Results[i] = model.ResultNonInteractiveDenied
		}
		out.Result = model.ResultNonInteractiveDenied
		return out
	}

	if len(pending) == 1 {
		i := pending[0]
		res, ap := g.prompter.Single(ctx, calls[i])
		g.record("", calls[i], res, "")
		out.Results[i], out.Paths[i] = res, ap
		out.Result = overall(res, anyLimited, anyDenied)
		g.installBatch(calls, pending, &out)
		return out
	}

	sub := make([]model.ToolCall, len(pending))
	for j, i := range pending {
		sub[j] = calls[i]
	}
	res, results, paths := g.prompter.Batch(ctx, sub)
	if res == model.ResultAborted {
		for _, i := range pending {
			out.Results[i] = model.ResultAborted
		}
		out.Result = model.ResultAborted
		return out
	}
	for j, i := range pending {
		out.Results[i], out.Paths[i] = results[j], paths[j]
		g.record("", calls[i], results[j], "")
	}
	out.Result = overall(res, anyLimited, anyDenied)
	g.installBatch(calls, pending, &out)
	return out
}

func (g *Gate) installBatch(calls []model.ToolCall, pending []int, out *BatchOutcome) {
	for _, i := range pending {
		if out.Results[i] == model.ResultAllowedAlways {
			out.Patterns[i] = g.install(calls[i], g.policy.Categorize(calls[i].Name))
		}
	}
}

// overall folds the prompt's answer with the pre-classified calls.
func overall(prompted model.Result, anyLimited, anyDenied bool) model.Result {
	switch {
	case prompted == model.ResultAborted:
		return model.ResultAborted
	case anyLimited:
		return model.ResultRateLimited
	case anyDenied || prompted == model.ResultDenied:
		return model.ResultDenied
	}
	return prompted
}

// proxied folds individually proxied results the way a batch prompt
// would: any abort aborts, any refusal denies.
func proxied(results []model.Result) model.Result {
	always := true
	for _, r := range results {
		switch {
		case r == model.ResultAborted:
			return model.ResultAborted
		case !r.Permits():
			return model.ResultDenied
		case r != model.ResultAllowedAlways:
			always = false
		}
	}
	if always {
		return model.ResultAllowedAlways
	}
	return model.ResultAllowed
}
