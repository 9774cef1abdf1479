// Package timer provides a single-slot cancellable timer. Scheduling a new
// operation stops the previous timer and invalidates its token, so at most one
// operation is pending at a time.
package timer

import (
	"sync"
	"time"
)

// Token identifies one scheduled operation
type Token uint64

// Pending holds the currently scheduled operation, if any.
// The zero value is ready to use.
type Pending struct {
	mu    sync.Mutex
	timer *time.Timer
	token Token
}

// Schedule supersedes any pending operation and runs fn after d with the new
// token. A non-positive d runs fn synchronously before Schedule returns.
// fn should check Current(token) under its own lock before applying results,
// since a newer Schedule can land between the timer firing and fn running.
func (p *Pending) Schedule(d time.Duration, fn func(Token)) Token {
	p.mu.Lock()
	p.stopLocked()
	p.token++
	tok := p.token

	if d <= 0 {
		p.mu.Unlock()
		fn(tok)
		return tok
	}

	p.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		if p.token != tok {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.mu.Unlock()
		fn(tok)
	})
	p.mu.Unlock()
	return tok
}

// Current reports whether tok is still the latest scheduled operation
func (p *Pending) Current(tok Token) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token == tok
}

// Active reports whether a timer is waiting to fire
func (p *Pending) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Cancel stops the pending timer and invalidates its token
func (p *Pending) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.token++
}

func (p *Pending) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
