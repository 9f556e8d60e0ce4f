// Package web is the HTTP transport: form login over cookie sessions, action
// and chat POSTs handed to the core loop, and a per-avatar SSE channel
// pushing JSON events back to the browser.
package web

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// eventBufferSize bounds the per-avatar event queue. Overflow drops the
// oldest event; a reconnecting client re-requests full state anyway.
const eventBufferSize = 20

// Avatar is the server-side handle of one browser login. Applications queue
// events here from the loop goroutine; the SSE handler drains them from its
// request goroutine.
type Avatar struct {
	user string
	log  *zap.Logger

	mu     sync.Mutex
	buffer []string
	notify chan struct{}
	closed bool
}

func newAvatar(user string, log *zap.Logger) *Avatar {
	return &Avatar{
		user:   user,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

func (a *Avatar) UserID() string { return a.user }

// SendMessage delivers a plain notice as an output event.
func (a *Avatar) SendMessage(msg string) {
	a.SendEvent(map[string]any{"output": msg})
}

// SendEvent marshals one event and queues it for the SSE channel.
func (a *Avatar) SendEvent(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		a.log.Error("marshal event", zap.String("user", a.user), zap.Error(err))
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.buffer = append(a.buffer, string(data))
	if len(a.buffer) > eventBufferSize {
		a.buffer = a.buffer[len(a.buffer)-eventBufferSize:]
	}
	a.mu.Unlock()
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// ShutDown tells the client this login has been superseded and stops the
// event channel. Called when another avatar logs in for the same user.
func (a *Avatar) ShutDown() {
	a.SendEvent(map[string]any{"shut-down": map[string]any{
		"message": "Another avatar has logged in for this user.  Logging off ...",
	}})
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// close stops the event channel without a client notice. Used on logout,
// where the client navigated away on its own.
func (a *Avatar) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// NextEvents blocks until events are queued, then returns and clears the
// queue. It returns nil once the avatar is shut down and drained, or when
// ctx ends.
func (a *Avatar) NextEvents(ctx context.Context) []string {
	for {
		a.mu.Lock()
		if len(a.buffer) > 0 {
			out := a.buffer
			a.buffer = nil
			a.mu.Unlock()
			return out
		}
		closed := a.closed
		a.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-a.notify:
		case <-ctx.Done():
			return nil
		}
	}
}
