package terminal

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/term"
)

// dialogBase carries the owning screen and the shared box geometry.
type dialogBase struct {
	scr  *screen
	left int
	top  int
	w    int
	h    int
}

// computeCoords centers a box of the given screen fractions.
func (d *dialogBase) computeCoords(wFrac, hFrac float64) {
	tw, th := d.scr.width, d.scr.height
	d.w = int(float64(tw) * wFrac)
	d.h = int(float64(th) * hFrac)
	d.top = (th - d.h) / 2
	d.left = (tw - d.w) / 2
}

// drawBox paints the dialog frame and blanks the interior. equator, if >= 0,
// is the interior row drawn as a dashed divider instead of blanks.
func (d *dialogBase) drawBox(equator int) {
	surf := d.scr.surf
	surf.Cursor(d.left, d.top)
	surf.Write(term.DBorderUpLeft)
	surf.Write(repeat(term.DBorderHoriz, d.w-2))
	surf.Write(term.DBorderUpRight)
	for y := d.top + 1; y < d.top+d.h-1; y++ {
		surf.Cursor(d.left, y)
		surf.Write(term.DBorderVert)
		if y == equator {
			surf.Write(repeat(term.HorizontalDashed, d.w-2))
		} else {
			surf.Write(repeat(" ", d.w-2))
		}
		surf.Write(term.DBorderVert)
	}
	surf.Cursor(d.left, d.top+d.h-1)
	surf.Write(term.DBorderDownLeft)
	surf.Write(repeat(term.DBorderHoriz, d.w-2))
	surf.Write(term.DBorderDownRight)
}

func (d *dialogBase) SetCursor() bool { return false }
func (d *dialogBase) Uninstall()      {}

// helpDialog is the static command reference. Any of q/ESC closes it; every
// other key is swallowed.
type helpDialog struct {
	dialogBase
}

func newHelpDialog(scr *screen) *helpDialog {
	return &helpDialog{dialogBase{scr: scr}}
}

func (d *helpDialog) Draw() {
	d.computeCoords(0.8, 0.6)
	d.drawBox(-1)
	surf := d.scr.surf
	title := "Available Commands"
	surf.Cursor(d.left+(d.w-term.DisplayWidth(title))/2, d.top+1)
	surf.Write(term.Underline(title))
	lines := []string{
		"h        - This help.",
		"q or ESC - Quit dialog.",
		"TAB      - Toggle chat window.",
		"CTRL-A   - Session admin mode.  Change game settings / restart.",
		"CTRL-X   - Leave the game.",
		"CTRL-D   - Disconnect.",
		"R        - Redraw the screen.",
	}
	d.scr.writeLines(d.left+2, d.top+3, d.top+d.h-2, lines)
}

func (d *helpDialog) HandleKey(k term.Key) bool {
	if k == 'q' || k == term.KeyEscape {
		d.scr.closeDialog()
	}
	return true
}

// chatDialog is the split-pane chat window: an editable prompt on top of the
// session ring scrollback. TAB toggles it closed again.
type chatDialog struct {
	dialogBase
	buf []rune
	pos int
}

func newChatDialog(scr *screen) *chatDialog {
	return &chatDialog{dialogBase: dialogBase{scr: scr}}
}

// ring returns the chat ring of the joined or invited session.
func (d *chatDialog) ring() *registry.ChatRing {
	entry := d.scr.core.Entry()
	sid := entry.JoinedID
	if sid == "" {
		sid = entry.InvitedID
	}
	if s := d.scr.core.Deps.Sessions.Get(sid); s != nil {
		return s.Chat
	}
	return nil
}

func (d *chatDialog) Draw() {
	d.computeCoords(0.8, 0.6)
	equator := d.top + 2
	d.drawBox(equator)
	surf := d.scr.surf

	prompt := ">>> " + string(d.buf)
	surf.Cursor(d.left+2, d.top+1)
	surf.Write(prompt)

	ring := d.ring()
	if ring == nil {
		return
	}
	lines := ring.Lines()
	row := equator + 2
	maxRow := d.top + d.h - 2
	for i := len(lines) - 1; i >= 0 && row < maxRow; i-- {
		prefix := fmt.Sprintf("[%s]: ", lines[i].Sender)
		indent := term.DisplayWidth(prefix)
		surf.Cursor(d.left+2, row)
		surf.Write(term.Bold(prefix))
		for _, line := range term.WrapParas(lines[i].Text, d.w-4-indent) {
			if row >= maxRow {
				surf.Cursor(d.left+2, row)
				surf.Write("...")
				break
			}
			surf.Cursor(d.left+2+indent, row)
			surf.Write(line)
			row++
		}
	}
}

func (d *chatDialog) HandleKey(k term.Key) bool {
	switch {
	case k == term.KeyTab:
		d.scr.closeDialog()
	case k == term.KeyBackspace:
		if d.pos > 0 {
			d.pos--
			d.buf = append(d.buf[:d.pos], d.buf[d.pos+1:]...)
		}
	case k == term.KeyEnter:
		if len(d.buf) > 0 {
			d.scr.core.SendChat(string(d.buf))
			d.buf = d.buf[:0]
			d.pos = 0
		}
	case k == term.KeyLeft:
		if d.pos > 0 {
			d.pos--
		}
	case k.Printable():
		d.buf = append(d.buf[:d.pos], append([]rune{rune(k)}, d.buf[d.pos:]...)...)
		d.pos++
	}
	return true
}

func (d *chatDialog) SetCursor() bool {
	d.scr.surf.Cursor(d.left+2+len(">>> ")+d.pos, d.top+1)
	return true
}

// sessionAdminDialog lets the session owner edit the pending settings and
// restart the game with them.
type sessionAdminDialog struct {
	dialogBase
	settings registry.Settings
}

func newSessionAdminDialog(scr *screen) *sessionAdminDialog {
	settings := registry.DefaultSettings()
	if s := scr.core.Session(); s != nil {
		settings.Werewolves = s.Settings.Werewolves
		settings.Roles = make(map[game.Card]bool, len(s.Settings.Roles))
		for c, on := range s.Settings.Roles {
			settings.Roles[c] = on
		}
	}
	return &sessionAdminDialog{dialogBase: dialogBase{scr: scr}, settings: settings}
}

func (d *sessionAdminDialog) Draw() {
	d.computeCoords(0.8, 0.6)
	equator := d.top + 7
	d.drawBox(equator)
	surf := d.scr.surf

	title := "Session Admin"
	surf.Cursor(d.left+(d.w-term.DisplayWidth(title))/2, d.top)
	surf.Write(term.Bold(title))

	colW := (d.w - 2) / 3
	left := [][2]int{{d.left + 2, d.top + 2}, {d.left + 2 + colW, d.top + 2}, {d.left + 2 + colW*2, d.top + 2}}
	d.scr.writeLines(left[0][0], left[0][1], equator, []string{
		"1-9: Set number of werewolves.",
		"s  : Toggle seer.",
		"r  : Toggle robber.",
		"t  : Toggle troublemaker.",
	})
	d.scr.writeLines(left[1][0], left[1][1], equator, []string{
		"m  : Toggle minion.",
		"i  : Toggle insomniac.",
		"h  : Toggle hunter.",
		"T  : Toggle tanner.",
	})
	d.scr.writeLines(left[2][0], left[2][1], equator, []string{
		"^R : Reset game.",
		"q  : Close dialog.",
	})

	yn := func(b bool) string {
		if b {
			return "Y"
		}
		return "N"
	}
	roles := d.settings.Roles
	rows := [][2]string{
		{"Seer:", yn(roles[game.Seer])}, {"Robber:", yn(roles[game.Robber])},
		{"Troublemaker:", yn(roles[game.Troublemaker])}, {"Minion:", yn(roles[game.Minion])},
		{"Insomniac:", yn(roles[game.Insomniac])}, {"Hunter:", yn(roles[game.Hunter])},
		{"Tanner:", yn(roles[game.Tanner])}, {"Werewolves:", fmt.Sprintf("%d", d.settings.Werewolves)},
	}
	halfW := (d.w - 2) / 2
	row := equator + 2
	for i := 0; i < len(rows); i += 2 {
		for n := 0; n < 2; n++ {
			label, flag := rows[i+n][0], rows[i+n][1]
			x := d.left + 2 + n*halfW
			surf.Cursor(x, row)
			surf.Write(term.Bold(label))
			surf.Cursor(x+15, row)
			surf.Write(flag)
		}
		row++
	}
}

func (d *sessionAdminDialog) HandleKey(k term.Key) bool {
	toggle := func(c game.Card) {
		d.settings.Roles[c] = !d.settings.Roles[c]
	}
	switch {
	case k == 'q' || k == term.KeyEscape:
		d.scr.closeDialog()
	case k >= '1' && k <= '9':
		d.settings.Werewolves = int(k - '0')
	case k == 's':
		toggle(game.Seer)
	case k == 'r':
		toggle(game.Robber)
	case k == 't':
		toggle(game.Troublemaker)
	case k == 'm':
		toggle(game.Minion)
	case k == 'i':
		toggle(game.Insomniac)
	case k == 'h':
		toggle(game.Hunter)
	case k == 'T':
		toggle(game.Tanner)
	case k == term.KeyCtrlR:
		if err := d.scr.core.ResetGame(d.settings); err != nil {
			d.scr.core.Deps.Log.Debug("game reset rejected", zap.Error(err))
		}
		d.scr.closeDialog()
	}
	return true
}

// choosePlayerDialog is a scrollable player list: up/down to move, i to
// invite the highlighted player, q to cancel.
type choosePlayerDialog struct {
	dialogBase
	players  []string
	sel      int
	onChoose func(player string)
}

func newChoosePlayerDialog(scr *screen, players []string, onChoose func(string)) *choosePlayerDialog {
	return &choosePlayerDialog{
		dialogBase: dialogBase{scr: scr},
		players:    players,
		onChoose:   onChoose,
	}
}

func (d *choosePlayerDialog) Draw() {
	d.computeCoords(0.5, 0.6)
	d.drawBox(-1)
	surf := d.scr.surf
	title := "Choose a Player"
	surf.Cursor(d.left+(d.w-term.DisplayWidth(title))/2, d.top)
	surf.Write(term.Bold(title))
	surf.Cursor(d.left+2, d.top+1)
	surf.Write("UP/DOWN - move, i - invite, q - cancel")
	row := d.top + 3
	maxRow := d.top + d.h - 2
	for n, player := range d.players {
		surf.Cursor(d.left+2, row)
		if row >= maxRow {
			surf.Write("...")
			break
		}
		marker := "  "
		if n == d.sel {
			marker = "> "
		}
		surf.Write(marker + player)
		row++
	}
}

func (d *choosePlayerDialog) HandleKey(k term.Key) bool {
	switch k {
	case term.KeyUp:
		if d.sel > 0 {
			d.sel--
		}
	case term.KeyDown:
		if d.sel < len(d.players)-1 {
			d.sel++
		}
	case 'i':
		player := d.players[d.sel]
		d.scr.closeDialog()
		d.onChoose(player)
	case 'q', term.KeyEscape:
		d.scr.closeDialog()
	}
	return true
}

// briefMessageDialog is a transient centered notice. Any key closes it, or a
// timer does after msgDuration.
type briefMessageDialog struct {
	dialogBase
	message string
	timer   *loop.Timer
}

func newBriefMessageDialog(scr *screen, message string) *briefMessageDialog {
	d := &briefMessageDialog{dialogBase: dialogBase{scr: scr}, message: message}
	d.timer = scr.core.Deps.Schedule(msgDuration, func() {
		if scr.dialog == Dialog(d) {
			scr.closeDialog()
		}
	})
	return d
}

func (d *briefMessageDialog) Draw() {
	lines := term.WrapParas(d.message, d.scr.width/2-4)
	tw, th := d.scr.width, d.scr.height
	d.w = tw / 2
	d.h = len(lines) + 2
	if d.h < 5 {
		d.h = 5
	}
	d.top = (th - d.h) / 2
	d.left = (tw - d.w) / 2
	d.drawBox(-1)
	row := d.top + (d.h-len(lines))/2
	for _, line := range lines {
		d.scr.surf.Cursor(d.left+(d.w-term.DisplayWidth(line))/2, row)
		d.scr.surf.Write(line)
		row++
	}
}

func (d *briefMessageDialog) HandleKey(term.Key) bool {
	d.scr.closeDialog()
	return true
}

func (d *briefMessageDialog) Uninstall() {
	d.timer.Stop()
}

// systemMessageDialog is a briefMessageDialog that runs a callback once
// dismissed. Used for the "<user> has left the game." hand-back to the lobby.
type systemMessageDialog struct {
	briefMessageDialog
	onClose func()
}

func newSystemMessageDialog(scr *screen, message string, onClose func()) *systemMessageDialog {
	d := &systemMessageDialog{
		briefMessageDialog: briefMessageDialog{dialogBase: dialogBase{scr: scr}, message: message},
		onClose:            onClose,
	}
	d.timer = scr.core.Deps.Schedule(msgDuration, func() {
		if scr.dialog == Dialog(d) {
			scr.closeDialog()
		}
	})
	return d
}

func (d *systemMessageDialog) HandleKey(term.Key) bool {
	d.scr.closeDialog()
	return true
}

func (d *systemMessageDialog) Uninstall() {
	d.timer.Stop()
	if d.onClose != nil {
		fn := d.onClose
		d.onClose = nil
		fn()
	}
}
