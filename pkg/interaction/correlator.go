package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tktech/zik-go/pkg/wire"
)

var (
	// ErrRequestTimeout is returned when the device does not answer
	// within the configured window.
	ErrRequestTimeout = errors.New("interaction: request timed out")

	// ErrClosed is returned for requests issued after Close, and
	// delivered to every request still pending when Close runs.
	ErrClosed = errors.New("interaction: correlator closed")

	// ErrDuplicatePath is returned when a request targets a path that
	// already has a different request in flight. Their answers could
	// not be told apart.
	ErrDuplicatePath = errors.New("interaction: conflicting request in flight for path")

	// ErrRejected is returned when the device answers with its error
	// flag set.
	ErrRejected = errors.New("interaction: request rejected by device")
)

// DefaultRequestTimeout bounds how long Do waits for an answer.
const DefaultRequestTimeout = 5 * time.Second

// Sender carries an encoded request body to the device.
type Sender interface {
	Send(body []byte) error
}

type result struct {
	answer *wire.Answer
	err    error
}

// pending tracks one in-flight wire exchange. Concurrent identical
// requests join the waiters list instead of re-sending.
type pending struct {
	req     wire.Request
	token   uint64
	waiters []chan result
}

// Correlator pairs answers with the requests that caused them.
type Correlator struct {
	sender  Sender
	timeout time.Duration

	// unsolicited receives every message that matches no pending
	// request. Never called with the correlator mutex held.
	unsolicited func(*wire.Message)

	seq atomic.Uint64

	mu       sync.Mutex
	closed   bool
	inflight map[string]*pending
}

// Config parameterizes a Correlator.
type Config struct {
	// RequestTimeout bounds Do. Zero selects DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Unsolicited receives answers with no matching request and all
	// notifications. Nil discards them.
	Unsolicited func(*wire.Message)
}

// New returns a correlator sending through the given sender.
func New(sender Sender, cfg Config) *Correlator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	unsolicited := cfg.Unsolicited
	if unsolicited == nil {
		unsolicited = func(*wire.Message) {}
	}
	return &Correlator{
		sender:      sender,
		timeout:     cfg.RequestTimeout,
		unsolicited: unsolicited,
		inflight:    make(map[string]*pending),
	}
}

// Do sends a request and waits for the matching answer. It returns
// ErrRequestTimeout when no answer arrives in time and ErrRejected,
// along with the answer, when the device refuses the request.
func (c *Correlator) Do(ctx context.Context, req *wire.Request) (*wire.Answer, error) {
	body, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	p, busy := c.inflight[req.Path]
	if busy {
		if p.req != *req {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, req.Path)
		}
		p.waiters = append(p.waiters, ch)
	} else {
		p = &pending{
			req:     *req,
			token:   c.seq.Add(1),
			waiters: []chan result{ch},
		}
		c.inflight[req.Path] = p
	}
	token := p.token
	c.mu.Unlock()

	if !busy {
		if err := c.sender.Send(body); err != nil {
			c.fail(req.Path, token, err)
		}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.answer, res.err
	case <-timer.C:
		c.abandon(req.Path, token, ch)
		return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, req.Path)
	case <-ctx.Done():
		c.abandon(req.Path, token, ch)
		return nil, ctx.Err()
	}
}

// HandleMessage routes a decoded device message. Answers complete the
// pending exchange on their path; everything else goes to the
// unsolicited callback.
func (c *Correlator) HandleMessage(msg *wire.Message) {
	if msg.Kind != wire.KindAnswer || msg.Answer == nil {
		c.unsolicited(msg)
		return
	}

	c.mu.Lock()
	p, ok := c.inflight[msg.Path]
	if ok {
		delete(c.inflight, msg.Path)
	}
	c.mu.Unlock()

	if !ok {
		c.unsolicited(msg)
		return
	}

	res := result{answer: msg.Answer}
	if msg.Answer.Rejected() {
		res.err = fmt.Errorf("%w: %s", ErrRejected, msg.Path)
	}
	for _, ch := range p.waiters {
		ch <- res
	}
}

// Pending reports how many wire exchanges are currently outstanding.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Close fails every outstanding request with ErrClosed. Requests issued
// afterwards fail the same way.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	inflight := c.inflight
	c.inflight = make(map[string]*pending)
	c.mu.Unlock()

	for _, p := range inflight {
		for _, ch := range p.waiters {
			ch <- result{err: ErrClosed}
		}
	}
}

// fail completes a pending exchange with an error, typically a send
// failure, unless an answer beat it.
func (c *Correlator) fail(path string, token uint64, err error) {
	c.mu.Lock()
	p, ok := c.inflight[path]
	if !ok || p.token != token {
		c.mu.Unlock()
		return
	}
	delete(c.inflight, path)
	c.mu.Unlock()

	for _, ch := range p.waiters {
		ch <- result{err: err}
	}
}

// abandon withdraws one waiter after a timeout or cancellation. The
// exchange itself stays registered while other waiters remain, so a
// late answer still completes them.
func (c *Correlator) abandon(path string, token uint64, ch chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.inflight[path]
	if !ok || p.token != token {
		return
	}
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	if len(p.waiters) == 0 {
		delete(c.inflight, path)
	}
}
