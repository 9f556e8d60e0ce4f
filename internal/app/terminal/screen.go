// Package terminal contains the full-screen terminal applications: the lobby
// and the game renderer, their dialogs, and the shared screen plumbing.
// Everything here runs on the core loop; the SSH transport posts decoded
// keystrokes and resize events in.
package terminal

import (
	"time"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	redrawDelay = 10 * time.Millisecond
	msgDuration = 5 * time.Second
)

// SurfaceProvider is implemented by avatars that expose a drawable terminal.
type SurfaceProvider interface {
	Surface() term.Surface
}

// Dialog is a modal overlay. Only one is active at a time; an unhandled key
// falls through to the application's command table.
type Dialog interface {
	Draw()
	HandleKey(k term.Key) bool
	// SetCursor positions the cursor and reports whether it did.
	SetCursor() bool
	// Uninstall releases dialog resources (pending timers).
	Uninstall()
}

// screen is the shared rendering state of a terminal application: the
// surface, the current size, the active dialog, and the coalesced redraw.
type screen struct {
	core   *app.Core
	surf   term.Surface
	width  int
	height int

	dialog Dialog

	// render is the owning application's full-screen draw pass.
	render func()
	// global handles application-level keys after the dialog declined.
	global func(k term.Key) bool
	// commands is the state-dependent key table; wildcard, when set, consumes
	// any key the table does not.
	commands map[term.Key]func()
	wildcard func()

	redrawTimer  *loop.Timer
	redrawQueued bool
}

func newScreen(core *app.Core, surf term.Surface) screen {
	return screen{
		core:   core,
		surf:   surf,
		width:  defaultWidth,
		height: defaultHeight,
	}
}

// Resize records the new terminal size and redraws.
func (s *screen) Resize(w, h int) {
	if w > 0 && h > 0 {
		s.width, s.height = w, h
	}
	s.redrawNow()
}

// rebind attaches the screen to a new connection's surface.
func (s *screen) rebind(surf term.Surface) {
	s.surf = surf
	s.requestRedraw()
}

// HandleKey dispatches one keystroke: active dialog first, then the
// screen-level keys, then the application's global keys, then the current
// command table. Unmatched keys are discarded.
func (s *screen) HandleKey(k term.Key) {
	if s.dialog != nil && s.dialog.HandleKey(k) {
		s.requestRedraw()
		return
	}
	switch k {
	case 'R':
		s.redrawNow()
		return
	case term.KeyCtrlD:
		if s.surf != nil {
			s.surf.Close()
		}
		return
	}
	if s.global != nil && s.global(k) {
		s.requestRedraw()
		return
	}
	if fn, ok := s.commands[k]; ok {
		fn()
		s.requestRedraw()
		return
	}
	if s.wildcard != nil {
		s.wildcard()
		s.requestRedraw()
	}
}

// requestRedraw schedules one whole-screen redraw. Requests arriving before
// the deferred callback runs collapse into it.
func (s *screen) requestRedraw() {
	if s.redrawQueued {
		return
	}
	s.redrawQueued = true
	s.redrawTimer = s.core.Deps.Schedule(redrawDelay, func() {
		s.redrawQueued = false
		s.redrawNow()
	})
}

// redrawNow redraws immediately: clear, full draw pass, top dialog, cursor.
func (s *screen) redrawNow() {
	if s.surf == nil {
		return
	}
	s.surf.Reset()
	if s.render != nil {
		s.render()
	}
	positioned := false
	if s.dialog != nil {
		s.dialog.Draw()
		positioned = s.dialog.SetCursor()
	}
	if !positioned {
		s.surf.Cursor(0, s.height-1)
	}
}

func (s *screen) installDialog(d Dialog) {
	if s.dialog != nil {
		s.dialog.Uninstall()
		s.cancelRedraw()
	}
	s.dialog = d
	s.requestRedraw()
}

func (s *screen) closeDialog() {
	if s.dialog == nil {
		return
	}
	s.dialog.Uninstall()
	s.dialog = nil
	s.cancelRedraw()
	s.requestRedraw()
}

// cancelRedraw drops a pending coalesced redraw so a stale frame cannot
// follow a dialog change.
func (s *screen) cancelRedraw() {
	s.redrawTimer.Stop()
	s.redrawQueued = false
}

// drawOuterBorder frames the whole display area in double-struck glyphs.
func (s *screen) drawOuterBorder() {
	surf, tw, th := s.surf, s.width, s.height
	surf.Cursor(0, 0)
	surf.Write(term.DBorderUpLeft)
	surf.Write(repeat(term.DBorderHoriz, tw-2))
	surf.Write(term.DBorderUpRight)
	for y := 1; y < th-1; y++ {
		surf.Cursor(0, y)
		surf.Write(term.DBorderVert)
		surf.Cursor(tw-1, y)
		surf.Write(term.DBorderVert)
	}
	surf.Cursor(0, th-1)
	surf.Write(term.DBorderDownLeft)
	surf.Write(repeat(term.DBorderHoriz, tw-2))
	surf.Write(term.DBorderDownRight)
}

func repeat(glyph string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*len(glyph))
	for i := 0; i < n; i++ {
		out = append(out, glyph...)
	}
	return string(out)
}

// writeLines writes consecutive rows starting at (x, y), stopping with an
// ellipsis when maxY is reached.
func (s *screen) writeLines(x, y, maxY int, lines []string) int {
	for _, line := range lines {
		s.surf.Cursor(x, y)
		if y >= maxY {
			s.surf.Write("...")
			break
		}
		s.surf.Write(line)
		y++
	}
	return y
}
