package terminal

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/term"
)

const outputLines = 25

// LobbyApp is the full-screen pre-game application: invitations, session
// membership, and the hand-off into the game once the owner starts it.
type LobbyApp struct {
	screen

	instructions string
	output       []string
	newChat      bool
}

// NewFactory returns the terminal application factory wired into Deps.
func NewFactory(deps *app.Deps) app.AppFactory {
	return func(user string, avatar registry.Avatar, tok lobby.Token) registry.Application {
		return New(deps, user, avatar, tok)
	}
}

// New builds the terminal application for user, restoring the given lobby
// token. A token in session_started with a live game lands directly in the
// game screen.
func New(deps *app.Deps, user string, avatar registry.Avatar, tok lobby.Token) registry.Application {
	l := newLobby(deps, user, surfaceOf(avatar))
	if tok.State == lobby.StateSessionStarted && l.core.Game() != nil {
		l.core.Lobby.Restore(tok)
		return l.core.Deps.Users.Get(user).App
	}
	if tok.State == lobby.StateStart {
		l.core.Lobby.Fire(lobby.Initialize)
	} else {
		l.core.Lobby.Restore(tok)
	}
	return l
}

func surfaceOf(avatar registry.Avatar) term.Surface {
	if sp, ok := avatar.(SurfaceProvider); ok {
		return sp.Surface()
	}
	return nil
}

func newLobby(deps *app.Deps, user string, surf term.Surface) *LobbyApp {
	l := &LobbyApp{screen: newScreen(app.NewCore(deps, user), surf)}
	l.render = l.draw
	l.global = l.globalKey
	l.core.Lobby.OnEnter = l.onEnter
	return l
}

func (l *LobbyApp) Kind() registry.Kind { return registry.KindTerminal }
func (l *LobbyApp) UserID() string      { return l.core.User }

// ProduceCompatible reattaches for the terminal kind and builds a web peer
// otherwise, transferring the lobby state by token.
func (l *LobbyApp) ProduceCompatible(kind registry.Kind, avatar registry.Avatar) registry.Application {
	if kind == registry.KindTerminal {
		l.rebind(surfaceOf(avatar))
		return l
	}
	return l.core.Deps.NewWebApp(l.core.User, avatar, l.core.Lobby.Serialize())
}

func (l *LobbyApp) ReceiveSignal(sig registry.Signal) {
	switch sig.Name {
	case app.SigInvitation:
		if err := l.core.HandleInviteSignal(); err != nil {
			l.core.Deps.Log.Debug("invitation ignored", zap.Error(err))
		}
	case registry.SigInviteCancelled:
		if err := l.core.HandleInviteCancelled(); err != nil {
			l.core.Deps.Log.Debug("invite revocation ignored", zap.Error(err))
			return
		}
		l.appendOutput("Your invitation has been revoked.")
		l.requestRedraw()
	case app.SigLobbyUpdate:
		l.requestRedraw()
	case app.SigSessionStarted:
		if err := l.core.HandleSessionStarted(); err != nil {
			l.core.Deps.Log.Debug("session start ignored", zap.Error(err))
		}
	case app.SigSessionCancelled:
		if err := l.core.HandleSessionCancelled(); err != nil {
			l.core.Deps.Log.Debug("session cancel ignored", zap.Error(err))
			return
		}
		l.appendOutput("The session was cancelled by its owner.")
		l.requestRedraw()
	case registry.SigChatMessage:
		l.handleNewChat()
	default:
		l.core.Deps.Log.Debug("unknown signal", zap.String("signal", sig.Name))
	}
}

// onEnter reacts to every lobby machine state entry, including token replay.
func (l *LobbyApp) onEnter(state lobby.State) {
	switch state {
	case lobby.StateUnjoined:
		l.closeDialog()
		l.instructions = strings.Join([]string{
			"Valid commands are:",
			"* (i)nvite players            - Invite players to join a session.",
			"* (l)ist                      - List players in the lobby.",
		}, "\n")
		l.commands = map[term.Key]func(){
			'i': l.invite,
			'l': l.listPlayers,
		}
	case lobby.StateWaitingForAccepts:
		l.instructions = strings.Join([]string{
			"Valid commands are:",
			"* (s)tart                     - Start the session with the current members.",
			"* (i)nvite                    - Invite another player.",
			"* (j)oined                    - Show players that have joined the session.",
			"* (c)ancel                    - Cancel the session.",
		}, "\n")
		l.commands = map[term.Key]func(){
			's': l.startSession,
			'i': l.invite,
			'j': l.showJoined,
			'c': l.cancelSession,
		}
	case lobby.StateInvited:
		l.instructions = strings.Join([]string{
			"Valid commands are:",
			"* (a)ccept                    - Accept invitation to join session.",
			"* (r)eject                    - Reject invitation to join session.",
		}, "\n")
		l.commands = map[term.Key]func(){
			'a': l.acceptInvitation,
			'r': l.rejectInvitation,
		}
	case lobby.StateAccepted:
		l.instructions = strings.Join([]string{
			"Valid commands are:",
			"* (j)oined                    - List players that have joined the session.",
			"* (c)ancel                    - Leave the session.",
		}, "\n")
		l.commands = map[term.Key]func(){
			'j': l.showJoined,
			'c': l.leaveSession,
		}
	case lobby.StateSessionStarted:
		l.enterGame()
		return
	}
	l.requestRedraw()
}

func (l *LobbyApp) globalKey(k term.Key) bool {
	if k == term.KeyTab {
		l.showChat()
		return true
	}
	return false
}

func (l *LobbyApp) showChat() {
	entry := l.core.Entry()
	if entry.JoinedID == "" && entry.InvitedID == "" {
		return
	}
	l.newChat = false
	l.installDialog(newChatDialog(&l.screen))
}

func (l *LobbyApp) handleNewChat() {
	if l.dialog == nil {
		l.newChat = true
	}
	l.requestRedraw()
}

func (l *LobbyApp) appendOutput(msg string) {
	l.output = append(l.output, msg)
	if len(l.output) > outputLines {
		l.output = l.output[len(l.output)-outputLines:]
	}
}

// enterGame swaps this application for the game screen. The two share the
// same core, so session and lobby state carry over.
func (l *LobbyApp) enterGame() {
	g := newGame(&l.screen)
	l.core.Deps.Users.Register(l.core.User).App = g
	g.requestRedraw()
}

// ---- commands ----

func (l *LobbyApp) listPlayers() {
	players := l.core.AvailablePlayers()
	l.appendOutput("Available Players:\n" + strings.Join(players, "\n"))
}

func (l *LobbyApp) invite() {
	var others []string
	for _, p := range l.core.AvailablePlayers() {
		if p != l.core.User {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		l.appendOutput("No other players to invite at this time.")
		return
	}
	l.installDialog(newChoosePlayerDialog(&l.screen, others, func(player string) {
		if err := l.core.Invite(player); err != nil {
			l.appendOutput(fmt.Sprintf("Could not invite %s: %v", player, err))
			return
		}
		l.appendOutput(fmt.Sprintf("Sent invite to '%s'.", player))
	}))
}

func (l *LobbyApp) showJoined() {
	s := l.core.Session()
	if s == nil {
		return
	}
	lines := []string{"The following players have joined the session:"}
	for n, player := range s.Members() {
		lines = append(lines, fmt.Sprintf("%d) %s", n+1, player))
	}
	l.appendOutput(strings.Join(lines, "\n"))
}

func (l *LobbyApp) startSession() {
	if err := l.core.StartGame(); err != nil {
		l.appendOutput(fmt.Sprintf("Could not start the session: %v", err))
	}
}

func (l *LobbyApp) cancelSession() {
	if err := l.core.CancelSession(); err != nil {
		l.appendOutput(fmt.Sprintf("Could not cancel the session: %v", err))
	}
}

func (l *LobbyApp) acceptInvitation() {
	if err := l.core.AcceptInvite(); err != nil {
		l.appendOutput(fmt.Sprintf("Could not accept the invitation: %v", err))
	}
}

func (l *LobbyApp) rejectInvitation() {
	if err := l.core.RejectInvite(); err != nil {
		l.appendOutput(fmt.Sprintf("Could not reject the invitation: %v", err))
	}
}

func (l *LobbyApp) leaveSession() {
	if err := l.core.LeaveAccepted(); err != nil {
		l.appendOutput(fmt.Sprintf("Could not leave the session: %v", err))
	}
}

// ---- rendering ----

func (l *LobbyApp) draw() {
	l.drawOuterBorder()
	l.drawPlayerTitle()
	l.drawStatus()
	l.drawInstructions()
	l.drawOutput()
}

func (l *LobbyApp) drawPlayerTitle() {
	surf, tw := l.surf, l.width
	name := l.core.User
	if len(name) > tw-4 {
		name = name[:tw-4]
	}
	title := " " + name + " "
	surf.Cursor((tw-term.DisplayWidth(title))/2, 0)
	surf.Write(term.Bold(title))
}

func (l *LobbyApp) drawStatus() {
	surf, tw := l.surf, l.width
	status := l.core.StatusLine()
	if term.DisplayWidth(status) > tw-2 {
		status = status[:tw-2]
	}
	surf.Cursor((tw-term.DisplayWidth(status))/2, 2)
	surf.Write(status)
	surf.Cursor(0, 4)
	surf.Write(term.DVertTLeft)
	surf.Write(repeat(term.Horizontal, tw-2))
	surf.Write(term.DVertTRight)
}

func (l *LobbyApp) drawInstructions() {
	surf, tw := l.surf, l.width
	var lines []string
	for _, raw := range strings.Split(l.instructions, "\n") {
		lines = append(lines, term.WrapParas(raw, tw-8)...)
	}
	maxW := 0
	for _, line := range lines {
		if w := term.DisplayWidth(line); w > maxW {
			maxW = w
		}
	}
	x := (tw - (maxW + 4)) / 2
	row := 6
	surf.Cursor(x, row)
	surf.Write(term.TDown)
	surf.Write(repeat(term.Horizontal, maxW+2))
	surf.Write(term.TDown)
	title := "Instructions"
	surf.Cursor((tw-term.DisplayWidth(title))/2, row)
	surf.Write(title)
	row++
	for _, line := range lines {
		if row > 13 {
			break
		}
		surf.Cursor(x, row)
		surf.Write(term.Vertical + " " + line)
		surf.Cursor(x+maxW+3, row)
		surf.Write(term.Vertical)
		row++
	}
	surf.Cursor(x, row)
	surf.Write(term.DownLeftCorner)
	surf.Write(repeat(term.Horizontal, maxW+2))
	surf.Write(term.DownRightCorner)
	if l.newChat {
		msg := "New Chat Message"
		surf.Cursor((tw-term.DisplayWidth(msg))/2, 14)
		surf.Write(term.Bold(msg))
	}
}

func (l *LobbyApp) drawOutput() {
	surf, tw, th := l.surf, l.width, l.height
	surf.Cursor(0, 15)
	surf.Write(term.DVertTLeft)
	surf.Write(repeat(term.HorizontalDashed, tw-2))
	surf.Write(term.DVertTRight)
	row := 16
	maxRow := th - 2
	for i := len(l.output) - 1; i >= 0 && row <= maxRow; i-- {
		surf.Cursor(2, row)
		surf.Write("-")
		for _, line := range term.WrapParas(l.output[i], tw-6) {
			surf.Cursor(4, row)
			if row > maxRow {
				surf.Write("...")
				break
			}
			surf.Write(line)
			row++
		}
	}
}
