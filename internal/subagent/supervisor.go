package subagent

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/ppiankov/toolgate/internal/logger"
)

// PollInterval is how often the serve loop wakes when no request is ready.
const PollInterval = 100 * time.Millisecond

// Handler decides one proxied request.
type Handler interface {
	Handle(ctx context.Context, peer string, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, peer string, req Request) Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, peer string, req Request) Response {
	return f(ctx, peer, req)
}

type attached struct {
	ch     *Channel
	peer   string
	closed bool
}

type event struct {
	src *attached
	req Request
	err error
}

// Supervisor serves approval requests from every attached subagent through a
// single handler, one at a time.
type Supervisor struct {
	mu       sync.Mutex
	channels []*attached
	log      *logger.Entry
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{log: logger.Named("supervisor")}
}

// Attach registers the parent end of a channel. Channels must be attached
// before Serve is called.
func (s *Supervisor) Attach(ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer := "subagent-" + strconv.Itoa(len(s.channels)+1)
	if ch.PeerPID > 0 {
		peer = "pid-" + strconv.Itoa(ch.PeerPID)
	}
	s.channels = append(s.channels, &attached{ch: ch, peer: peer})
}

// Serve handles requests until every channel is closed, timeout elapses
// (zero means no limit), or ctx is done. Requests are handled one per loop
// iteration so prompts never interleave.
func (s *Supervisor) Serve(ctx context.Context, h Handler, timeout time.Duration) error {
	s.mu.Lock()
	channels := append([]*attached(nil), s.channels...)
	s.mu.Unlock()

	events := make(chan event)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(stop)
		for _, a := range channels {
			a.ch.Close()
		}
		wg.Wait()
	}()

	for _, a := range channels {
		wg.Add(1)
		go func(a *attached) {
			defer wg.Done()
			s.read(a, events, stop)
		}(a)
	}

	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	open := len(channels)
	for open > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expire:
			s.log.WithField("open", open).Info("approval supervisor timed out")
			return nil
		case ev := <-events:
			if ev.src.closed {
				continue
			}
			if !s.handle(ctx, h, ev) {
				ev.src.closed = true
				ev.src.ch.Close()
				open--
			}
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Supervisor) read(a *attached, events chan<- event, stop <-chan struct{}) {
	for {
		var req Request
		err := ReadFrame(a.ch.Requests, &req)
		select {
		case events <- event{src: a, req: req, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// handle answers one request and reports whether the channel is still usable.
func (s *Supervisor) handle(ctx context.Context, h Handler, ev event) bool {
	log := s.log.WithField("peer", ev.src.peer)
	if ev.err != nil {
		if errors.Is(ev.err, io.EOF) {
			log.Debug("subagent closed its channel")
		} else {
			log.WithError(ev.err).Warn("dropping subagent channel")
		}
		return false
	}
	resp := h.Handle(ctx, ev.src.peer, ev.req)
	resp.RequestID = ev.req.RequestID
	if err := WriteFrame(ev.src.ch.Responses, resp); err != nil {
		log.WithError(err).Warn("write approval response")
		return false
	}
	return true
}
