// Package term contains the terminal-side primitives: the abstract drawing
// surface, an ANSI escape emitter, the box-drawing glyph table, keystroke
// decoding, and text wrapping helpers.
package term

import (
	"fmt"
	"io"

	"golang.org/x/text/width"
)

// Surface is the abstract full-screen terminal the renderer draws on.
type Surface interface {
	// Reset clears the screen and restores default attributes.
	Reset()
	// Cursor moves the cursor to 0-based column x, row y.
	Cursor(x, y int)
	Write(s string)
	SaveCursor()
	RestoreCursor()
	// Close drops the underlying connection.
	Close()
}

// AnsiSurface renders Surface calls as VT/ANSI escape sequences on a writer.
type AnsiSurface struct {
	w       io.Writer
	onClose func()
}

// NewAnsiSurface wraps w. onClose, if non-nil, is invoked by Close to drop
// the transport connection.
func NewAnsiSurface(w io.Writer, onClose func()) *AnsiSurface {
	return &AnsiSurface{w: w, onClose: onClose}
}

func (s *AnsiSurface) Reset() {
	io.WriteString(s.w, "\x1b[0m\x1b[2J\x1b[H")
}

func (s *AnsiSurface) Cursor(x, y int) {
	fmt.Fprintf(s.w, "\x1b[%d;%dH", y+1, x+1)
}

func (s *AnsiSurface) Write(text string) {
	io.WriteString(s.w, text)
}

func (s *AnsiSurface) SaveCursor() {
	io.WriteString(s.w, "\x1b7")
}

func (s *AnsiSurface) RestoreCursor() {
	io.WriteString(s.w, "\x1b8")
}

func (s *AnsiSurface) Close() {
	if s.onClose != nil {
		s.onClose()
	}
}

// Bold wraps text in bold attributes.
func Bold(text string) string {
	return "\x1b[1m" + text + "\x1b[22m"
}

// Underline wraps text in underline attributes.
func Underline(text string) string {
	return "\x1b[4m" + text + "\x1b[24m"
}

// DisplayWidth returns the number of terminal cells text occupies. Wide and
// fullwidth runes count as two cells.
func DisplayWidth(text string) int {
	cells := 0
	for _, r := range text {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			cells += 2
		default:
			cells++
		}
	}
	return cells
}
