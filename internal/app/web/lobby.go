package web

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
)

// Resources the client is redirected to via install-app events.
const (
	LobbyResource = "/lobby"
	GameResource  = "/werewolves"
)

// Actor is the surface the HTTP transport drives. Decoded client requests
// land here, already posted to the core loop.
type Actor interface {
	registry.Application
	HandleAction(id int)
	HandleChat(text string)
	RequestUpdate(key string)
	Resource() string
	// Logoff releases any session state the user holds before the transport
	// destroys the avatar.
	Logoff()
}

// LobbyApp is the browser pre-game application. Every lobby state maps to a
// status line plus a numbered action list; the client posts ids back.
type LobbyApp struct {
	core *app.Core
	sink EventSink

	status  string
	actions []Action
	// handlers maps the current action ids; dialogHandlers takes over while a
	// choose-players dialog is shown.
	handlers       map[int]func()
	dialogHandlers map[int]func()
}

// NewFactory returns the web application factory wired into Deps.
func NewFactory(deps *app.Deps) app.AppFactory {
	return func(user string, avatar registry.Avatar, tok lobby.Token) registry.Application {
		return New(deps, user, avatar, tok)
	}
}

// New builds the browser application for user, restoring the given lobby
// token. A token in session_started with a live game lands directly in the
// game application.
func New(deps *app.Deps, user string, avatar registry.Avatar, tok lobby.Token) registry.Application {
	l := newLobby(deps, user, sinkOf(avatar))
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

func sinkOf(avatar registry.Avatar) EventSink {
	if es, ok := avatar.(EventSink); ok {
		return es
	}
	return nil
}

func newLobby(deps *app.Deps, user string, sink EventSink) *LobbyApp {
	l := &LobbyApp{core: app.NewCore(deps, user), sink: sink}
	l.core.Lobby.OnEnter = l.onEnter
	return l
}

func (l *LobbyApp) Kind() registry.Kind { return registry.KindWeb }
func (l *LobbyApp) UserID() string      { return l.core.User }
func (l *LobbyApp) Resource() string    { return LobbyResource }

func (l *LobbyApp) emit(ev map[string]any) {
	if l.sink != nil {
		l.sink.SendEvent(ev)
	}
}

// ProduceCompatible reattaches for the web kind and builds a terminal peer
// otherwise, transferring the lobby state by token.
func (l *LobbyApp) ProduceCompatible(kind registry.Kind, avatar registry.Avatar) registry.Application {
	if kind == registry.KindWeb {
		l.sink = sinkOf(avatar)
		l.emitState()
		return l
	}
	return l.core.Deps.NewTerminalApp(l.core.User, avatar, l.core.Lobby.Serialize())
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
		l.emit(outputEvent("Your invitation has been revoked."))
	case app.SigLobbyUpdate:
		l.emitState()
	case app.SigSessionStarted:
		if err := l.core.HandleSessionStarted(); err != nil {
			l.core.Deps.Log.Debug("session start ignored", zap.Error(err))
		}
	case app.SigSessionCancelled:
		if err := l.core.HandleSessionCancelled(); err != nil {
			l.core.Deps.Log.Debug("session cancel ignored", zap.Error(err))
			return
		}
		l.emit(outputEvent("The session was cancelled by its owner."))
	case registry.SigChatMessage:
		l.emitLastChat()
	default:
		l.core.Deps.Log.Debug("unknown signal", zap.String("signal", sig.Name))
	}
}

func (l *LobbyApp) emitLastChat() {
	entry := l.core.Entry()
	sid := entry.JoinedID
	if sid == "" {
		sid = entry.InvitedID
	}
	s := l.core.Deps.Sessions.Get(sid)
	if s == nil {
		return
	}
	lines := s.Chat.Lines()
	if len(lines) == 0 {
		return
	}
	last := lines[len(lines)-1]
	l.emit(chatEvent(last.Sender, last.Text))
}

// onEnter reacts to every lobby machine state entry, including token replay.
func (l *LobbyApp) onEnter(state lobby.State) {
	l.dialogHandlers = nil
	switch state {
	case lobby.StateUnjoined:
		l.actions = []Action{
			{"Invite players to join a session.", 0, "Selecting a player ..."},
			{"List players in the lobby.", 1, "Players listed."},
		}
		l.handlers = map[int]func(){
			0: l.invite,
			1: l.listPlayers,
		}
	case lobby.StateWaitingForAccepts:
		l.actions = []Action{
			{"Start the session with the current members.", 0, "Session started."},
			{"Invite another player.", 1, "Selecting a player ..."},
			{"Show players that have joined the session.", 2, "Members listed."},
			{"Cancel the session.", 3, "Session cancelled."},
		}
		l.handlers = map[int]func(){
			0: l.startSession,
			1: l.invite,
			2: l.showJoined,
			3: l.cancelSession,
		}
	case lobby.StateInvited:
		l.actions = []Action{
			{"Accept invitation to join session.", 0, "Invitation accepted."},
			{"Reject invitation to join session.", 1, "Invitation rejected."},
		}
		l.handlers = map[int]func(){
			0: l.acceptInvitation,
			1: l.rejectInvitation,
		}
	case lobby.StateAccepted:
		l.actions = []Action{
			{"List players that have joined the session.", 0, "Members listed."},
			{"Leave the session.", 1, "You left the session."},
		}
		l.handlers = map[int]func(){
			0: l.showJoined,
			1: l.leaveSession,
		}
	case lobby.StateSessionStarted:
		l.enterGame()
		return
	}
	l.status = l.core.StatusLine()
	l.emitState()
}

func (l *LobbyApp) emitState() {
	l.status = l.core.StatusLine()
	l.emit(statusEvent(l.status))
	l.emit(actionsEvent(l.actions))
}

// enterGame swaps this application for the game one and redirects the client.
func (l *LobbyApp) enterGame() {
	g := newGameApp(l.core, l.sink)
	l.core.Deps.Users.Register(l.core.User).App = g
	g.emit(installAppEvent(GameResource))
}

// HandleAction dispatches one posted action id. Ids are scoped to the active
// dialog when one is shown; unknown ids are dropped.
func (l *LobbyApp) HandleAction(id int) {
	table := l.handlers
	if l.dialogHandlers != nil {
		table = l.dialogHandlers
	}
	fn, ok := table[id]
	if !ok {
		l.core.Deps.Log.Debug("unmapped action", zap.Int("id", id))
		return
	}
	fn()
}

// HandleChat appends one chat line to the session ring.
func (l *LobbyApp) HandleChat(text string) {
	l.core.SendChat(text)
}

// RequestUpdate re-emits one client element on demand.
func (l *LobbyApp) RequestUpdate(key string) {
	switch key {
	case "status":
		l.emit(statusEvent(l.core.StatusLine()))
	case "actions":
		l.emit(actionsEvent(l.actions))
	case "request-all":
		l.emitState()
	}
}

// Logoff backs the user out of whatever lobby state they hold.
func (l *LobbyApp) Logoff() {
	switch l.core.Lobby.State() {
	case lobby.StateWaitingForAccepts:
		l.cancelSession()
	case lobby.StateAccepted:
		l.leaveSession()
	case lobby.StateInvited:
		l.rejectInvitation()
	}
}

// ---- actions ----

func (l *LobbyApp) listPlayers() {
	players := l.core.AvailablePlayers()
	l.emit(outputEvent("Available Players:\n" + strings.Join(players, "\n")))
}

func (l *LobbyApp) invite() {
	var others []string
	for _, p := range l.core.AvailablePlayers() {
		if p != l.core.User {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		l.emit(outputEvent("No other players to invite at this time."))
		return
	}
	actions := make([]Action, 0, len(others)+1)
	handlers := make(map[int]func(), len(others)+1)
	for n, player := range others {
		p := player
		actions = append(actions, Action{p, n, ""})
		handlers[n] = func() { l.sendInvite(p) }
	}
	quit := len(actions)
	actions = append(actions, Action{"Stop inviting players", quit, ""})
	handlers[quit] = l.closeDialog
	l.dialogHandlers = handlers
	l.emit(showDialogEvent("choose-players", actions))
}

func (l *LobbyApp) sendInvite(player string) {
	defer l.closeDialog()
	if err := l.core.Invite(player); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not invite %s: %v", player, err)))
		return
	}
	l.emit(outputEvent(fmt.Sprintf("Sent invite to '%s'.", player)))
}

func (l *LobbyApp) closeDialog() {
	l.dialogHandlers = nil
	l.emit(hideDialogEvent())
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
	l.emit(outputEvent(strings.Join(lines, "\n")))
}

func (l *LobbyApp) startSession() {
	if err := l.core.StartGame(); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not start the session: %v", err)))
	}
}

func (l *LobbyApp) cancelSession() {
	if err := l.core.CancelSession(); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not cancel the session: %v", err)))
	}
}

func (l *LobbyApp) acceptInvitation() {
	if err := l.core.AcceptInvite(); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not accept the invitation: %v", err)))
	}
}

func (l *LobbyApp) rejectInvitation() {
	if err := l.core.RejectInvite(); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not reject the invitation: %v", err)))
	}
}

func (l *LobbyApp) leaveSession() {
	if err := l.core.LeaveAccepted(); err != nil {
		l.emit(outputEvent(fmt.Sprintf("Could not leave the session: %v", err)))
	}
}
