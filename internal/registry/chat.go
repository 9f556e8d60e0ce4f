package registry

// ChatLine is one entry in a session's chat scrollback.
type ChatLine struct {
	Sender string
	Text   string
}

// ChatRing is a bounded chat scrollback. Appending beyond capacity evicts
// the oldest line.
type ChatRing struct {
	lines []ChatLine
	cap   int
}

func NewChatRing(capacity int) *ChatRing {
	return &ChatRing{cap: capacity}
}

// Append adds a line, evicting the oldest when full.
func (r *ChatRing) Append(sender, text string) {
	if len(r.lines) == r.cap {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:r.cap-1]
	}
	r.lines = append(r.lines, ChatLine{Sender: sender, Text: text})
}

// Lines returns a copy of the scrollback, oldest first.
func (r *ChatRing) Lines() []ChatLine {
	out := make([]ChatLine, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *ChatRing) Len() int { return len(r.lines) }
