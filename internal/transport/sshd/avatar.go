package sshd

import (
	"io"
	"sync"

	"github.com/onwgo/server/internal/term"
)

// Avatar is the server-side handle of one SSH login. It owns the session
// channel and exposes the ANSI surface the terminal applications draw on.
type Avatar struct {
	user string
	ch   io.WriteCloser
	surf *term.AnsiSurface

	closeOnce sync.Once
}

func newAvatar(user string, ch io.WriteCloser) *Avatar {
	a := &Avatar{user: user, ch: ch}
	a.surf = term.NewAnsiSurface(ch, a.Close)
	return a
}

func (a *Avatar) UserID() string        { return a.user }
func (a *Avatar) Surface() term.Surface { return a.surf }

// SendMessage writes a transient notice. The next full redraw overwrites it.
func (a *Avatar) SendMessage(msg string) {
	a.surf.SaveCursor()
	a.surf.Cursor(0, 0)
	a.surf.Write(term.Bold(msg))
	a.surf.RestoreCursor()
}

// ShutDown tells the client this login has been superseded and drops the
// connection. Called when another avatar logs in for the same user.
func (a *Avatar) ShutDown() {
	a.surf.Reset()
	a.surf.Cursor(0, 0)
	a.surf.Write("Another avatar has logged in for this user.  Logging off ...\r\n")
	a.Close()
}

// Close drops the underlying channel. Safe to call more than once.
func (a *Avatar) Close() {
	a.closeOnce.Do(func() { a.ch.Close() })
}
