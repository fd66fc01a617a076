package subagent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
)

// DefaultTimeout bounds how long a child waits for the parent's decision.
const DefaultTimeout = 5 * time.Minute

var (
	errIDMismatch    = errors.New("response request_id mismatch")
	errInvalidResult = errors.New("result out of range")
)

// Client is the child side of the proxy. Requests are serialized; ids come
// from a per-client counter starting at 1.
type Client struct {
	ch      *Channel
	timeout time.Duration
	nextID  atomic.Uint64
	log     *logger.Entry

	mu     sync.Mutex
	broken error
}

// NewClient wraps the child end of a channel.
func NewClient(ch *Channel) *Client {
	return &Client{
		ch:      ch,
		timeout: DefaultTimeout,
		log:     logger.Named("subagent"),
	}
}

// SetTimeout overrides DefaultTimeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Close releases the channel.
func (c *Client) Close() error { return c.ch.Close() }

// Request asks the parent to approve call. Any failure yields ResultDenied.
func (c *Client) Request(ctx context.Context, call model.ToolCall) model.Result {
	resp, err := c.Exchange(ctx, call)
	if err != nil {
		c.log.WithError(err).WithField("tool", call.Name).Warn("approval request failed; denying")
		return model.ResultDenied
	}
	if resp.Result == model.ResultAllowedAlways && resp.Pattern != "" {
		c.log.WithField("pattern", resp.Pattern).Debug("parent added allowlist entry")
	}
	return resp.Result
}

// Exchange sends one request and returns the validated response.
func (c *Client) Exchange(ctx context.Context, call model.ToolCall) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return Response{}, c.broken
	}
	req := Request{
		ToolName:       call.Name,
		ArgumentsJSON:  call.Arguments,
		DisplaySummary: Summary(call),
		RequestID:      c.nextID.Add(1),
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ch.Requests.SetWriteDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set request deadline: %w", err)
	}
	if err := c.ch.Responses.SetReadDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set response deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		c.ch.Requests.SetWriteDeadline(now)
		c.ch.Responses.SetReadDeadline(now)
	})
	defer stop()

	// A frame cut short leaves the stream unusable, so any write failure
	// breaks the client, timeouts included.
	if err := WriteFrame(c.ch.Requests, req); err != nil {
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			c.broken = err
		}
		if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
			err = ctx.Err()
		}
		return Response{}, err
	}

	for {
		var resp Response
		if err := ReadFrame(c.ch.Responses, &resp); err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				c.broken = err
			} else if ctx.Err() != nil {
				err = ctx.Err()
			}
			return Response{}, err
		}
		// A response to an earlier request that timed out.
		if resp.RequestID < req.RequestID {
			continue
		}
		if resp.RequestID != req.RequestID {
			return Response{}, &ProtocolError{Op: "response", Err: errIDMismatch}
		}
		if !resp.Result.Valid() {
			return Response{}, &ProtocolError{Op: "response", Err: fmt.Errorf("%w: %d", errInvalidResult, resp.Result)}
		}
		return resp, nil
	}
}
