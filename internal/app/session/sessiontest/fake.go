// Package sessiontest provides an instrumented fake upstream for tests.
package sessiontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/PabloGalante/kbrelay/internal/domain"
)

// Connector hands out Conn, or fails with ConnectErr.
type Connector struct {
	Conn       *Conn
	ConnectErr error

	connects atomic.Int32
}

func (c *Connector) Connect(_ context.Context, _ string) (domain.Connection, error) {
	c.connects.Add(1)
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	return c.Conn, nil
}

func (c *Connector) Connects() int {
	return int(c.connects.Load())
}

// Conn records every call and flags any call that starts while another is
// still running.
type Conn struct {
	OpenErr    error
	RefreshErr error
	Sources    []domain.SourceID
	SourcesErr error

	// AskFunc answers queries. Defaults to echoing the prompt.
	AskFunc func(ctx context.Context, prompt string, sourceIDs []domain.SourceID) (string, error)

	// Delay is added to every call to widen any overlap window.
	Delay time.Duration

	inFlight  atomic.Int32
	reentrant atomic.Int32

	opens     atomic.Int32
	refreshes atomic.Int32
	asks      atomic.Int32

	mu      sync.Mutex
	prompts []string
	scopes  [][]domain.SourceID
}

func (c *Conn) enter() func() {
	if c.inFlight.Add(1) > 1 {
		c.reentrant.Add(1)
	}
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}
	return func() { c.inFlight.Add(-1) }
}

func (c *Conn) KeepSessionOpen(_ context.Context) error {
	defer c.enter()()
	c.opens.Add(1)
	return c.OpenErr
}

func (c *Conn) RefreshAuth(_ context.Context) error {
	defer c.enter()()
	c.refreshes.Add(1)
	return c.RefreshErr
}

func (c *Conn) ListSources(_ context.Context, _ string) ([]domain.SourceID, error) {
	defer c.enter()()
	if c.SourcesErr != nil {
		return nil, c.SourcesErr
	}
	return c.Sources, nil
}

func (c *Conn) Ask(ctx context.Context, _ string, prompt string, sourceIDs []domain.SourceID) (string, error) {
	defer c.enter()()
	c.asks.Add(1)

	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.scopes = append(c.scopes, sourceIDs)
	c.mu.Unlock()

	if c.AskFunc != nil {
		return c.AskFunc(ctx, prompt, sourceIDs)
	}
	return "answer: " + prompt, nil
}

func (c *Conn) Opens() int     { return int(c.opens.Load()) }
func (c *Conn) Refreshes() int { return int(c.refreshes.Load()) }
func (c *Conn) Asks() int      { return int(c.asks.Load()) }

// Reentrant counts calls that overlapped another call.
func (c *Conn) Reentrant() int { return int(c.reentrant.Load()) }

func (c *Conn) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func (c *Conn) Scopes() [][]domain.SourceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]domain.SourceID(nil), c.scopes...)
}

// ErrUpstream is a stand-in upstream failure.
var ErrUpstream = errors.New("upstream exploded")
