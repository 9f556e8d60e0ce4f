package terminal

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/term"
)

type fakeSurface struct {
	out    strings.Builder
	resets int
	closed bool
}

func (f *fakeSurface) Reset()         { f.resets++; f.out.Reset() }
func (f *fakeSurface) Cursor(x, y int) {}
func (f *fakeSurface) Write(s string) { f.out.WriteString(s) }
func (f *fakeSurface) SaveCursor()    {}
func (f *fakeSurface) RestoreCursor() {}
func (f *fakeSurface) Close()         { f.closed = true }

type fakeAvatar struct {
	user     string
	surf     *fakeSurface
	messages []string
	shutDown bool
}

func (a *fakeAvatar) UserID() string        { return a.user }
func (a *fakeAvatar) SendMessage(msg string) { a.messages = append(a.messages, msg) }
func (a *fakeAvatar) ShutDown()             { a.shutDown = true }
func (a *fakeAvatar) Surface() term.Surface { return a.surf }

func newTestDeps() *app.Deps {
	users := registry.NewUserRegistry()
	sessions := registry.NewSessionRegistry(rand.New(rand.NewSource(11)))
	post := func(fn func()) { fn() }
	deps := &app.Deps{
		Users:    users,
		Sessions: sessions,
		Bus:      registry.NewBus(users, sessions, post, zap.NewNop()),
		Log:      zap.NewNop(),
		Rand:     rand.New(rand.NewSource(11)),
		Post:     post,
		Schedule: func(d time.Duration, fn func()) *loop.Timer { fn(); return nil },
	}
	deps.NewTerminalApp = NewFactory(deps)
	return deps
}

func login(t *testing.T, deps *app.Deps, user string) (*fakeAvatar, registry.Application) {
	t.Helper()
	av := &fakeAvatar{user: user, surf: &fakeSurface{}}
	a := New(deps, user, av, lobby.Token{State: lobby.StateStart})
	entry := deps.Users.Register(user)
	entry.Avatar = av
	entry.App = a
	return av, a
}

// currentApp follows the registry, since the lobby swaps itself for the game
// application on session start.
func currentApp(deps *app.Deps, user string) registry.Application {
	return deps.Users.Get(user).App
}

func pressKeys(a registry.Application, keys ...term.Key) {
	for _, k := range keys {
		a.(interface{ HandleKey(term.Key) }).HandleKey(k)
	}
}

func TestLobbyShowsStatusAndPlayers(t *testing.T) {
	deps := newTestDeps()
	av, a := login(t, deps, "alice")

	pressKeys(a, 'l')
	screen := av.surf.out.String()
	assert.Contains(t, screen, "You are not part of any session.")
	assert.Contains(t, screen, "Available Players:")
}

func TestInviteThroughDialog(t *testing.T) {
	deps := newTestDeps()
	avA, alice := login(t, deps, "alice")
	_, _ = login(t, deps, "bob")

	pressKeys(alice, 'i')       // opens the choose-player dialog
	pressKeys(alice, 'i')       // invites the highlighted player (bob)

	assert.Contains(t, avA.surf.out.String(), "Sent invite to 'bob'.")
	assert.Equal(t, deps.Users.Get("alice").JoinedID, deps.Users.Get("bob").InvitedID)

	bobApp := currentApp(deps, "bob").(*LobbyApp)
	assert.Equal(t, lobby.StateInvited, bobApp.core.Lobby.State())
}

func TestAcceptAndStartSwapsInGameApp(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	require.IsType(t, &GameApp{}, currentApp(deps, "alice"))
	require.IsType(t, &GameApp{}, currentApp(deps, "bob"))

	g := currentApp(deps, "alice").(*GameApp)
	require.NotNil(t, g.core.Game())
	assert.Equal(t, game.StateCardsDealt, g.core.Game().State())
}

func TestNoOtherPlayersToInvite(t *testing.T) {
	deps := newTestDeps()
	av, alice := login(t, deps, "alice")

	pressKeys(alice, 'i')
	assert.Contains(t, av.surf.out.String(), "No other players to invite at this time.")
}

func TestChatDialogSendsToRing(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	avB, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')

	pressKeys(alice, term.KeyTab)
	pressKeys(alice, 'h', 'i', term.KeyEnter)

	s := deps.Sessions.Get(deps.Users.Get("alice").JoinedID)
	require.NotNil(t, s)
	lines := s.Chat.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "alice", lines[0].Sender)
	assert.Equal(t, "hi", lines[0].Text)
	// Bob sees the new-chat flag on his next redraw.
	assert.Contains(t, avB.surf.out.String(), "New Chat Message")
}

func TestChatClosedWithoutSession(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")

	pressKeys(alice, term.KeyTab)
	assert.Nil(t, alice.(*LobbyApp).dialog)
}

func TestSessionAdminOwnerOnly(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	avB, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	pressKeys(currentApp(deps, "bob"), term.KeyCtrlA)
	assert.Contains(t, avB.surf.out.String(),
		"Only the session administrator can modify game settings.")

	ga := currentApp(deps, "alice").(*GameApp)
	pressKeys(ga, term.KeyCtrlA)
	require.IsType(t, &sessionAdminDialog{}, ga.dialog)
}

func TestSessionAdminResetAppliesSettings(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	ga := currentApp(deps, "alice").(*GameApp)
	old := ga.core.Game()
	pressKeys(ga, term.KeyCtrlA, '3', 'h', term.KeyCtrlR)

	s := ga.core.Session()
	assert.Equal(t, 3, s.Settings.Werewolves)
	assert.True(t, s.Settings.Roles[game.Hunter])
	assert.NotSame(t, old, s.Game)
	assert.Nil(t, ga.dialog)
}

func TestShutdownReturnsToLobby(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	sid := deps.Users.Get("alice").JoinedID
	pressKeys(currentApp(deps, "alice"), term.KeyCtrlX)

	// Initiator drops straight back to the lobby.
	require.IsType(t, &LobbyApp{}, currentApp(deps, "alice"))

	// The other member sees the system dialog first; dismissing it hands
	// them back to the lobby too.
	bg := currentApp(deps, "bob").(*GameApp)
	require.IsType(t, &systemMessageDialog{}, bg.dialog)
	pressKeys(bg, term.KeyEnter)
	require.IsType(t, &LobbyApp{}, currentApp(deps, "bob"))

	assert.Nil(t, deps.Sessions.Get(sid))
}

func TestCtrlDClosesConnection(t *testing.T) {
	deps := newTestDeps()
	av, alice := login(t, deps, "alice")

	pressKeys(alice, term.KeyCtrlD)
	assert.True(t, av.surf.closed)
}

func TestForceRedraw(t *testing.T) {
	deps := newTestDeps()
	av, alice := login(t, deps, "alice")

	before := av.surf.resets
	pressKeys(alice, 'R')
	assert.Greater(t, av.surf.resets, before)
}

func TestResizeRedraws(t *testing.T) {
	deps := newTestDeps()
	av, alice := login(t, deps, "alice")

	la := alice.(*LobbyApp)
	la.Resize(120, 40)
	assert.Equal(t, 120, la.width)
	assert.Equal(t, 40, la.height)
	assert.Contains(t, av.surf.out.String(), "You are not part of any session.")
}

func TestProduceCompatibleSameKindRebinds(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")

	replacement := &fakeAvatar{user: "alice", surf: &fakeSurface{}}
	again := alice.ProduceCompatible(registry.KindTerminal, replacement)
	assert.Same(t, alice, again)

	la := again.(*LobbyApp)
	la.redrawNow()
	assert.Contains(t, replacement.surf.out.String(), "You are not part of any session.")
}

func TestTokenRestoreLandsInGame(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	// A reconnect with the session_started token must land in the game.
	av := &fakeAvatar{user: "alice", surf: &fakeSurface{}}
	a := New(deps, "alice", av, lobby.Token{State: lobby.StateSessionStarted})
	require.IsType(t, &GameApp{}, a)
}

func TestHelpDialogOpensAndCloses(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	ga := currentApp(deps, "alice").(*GameApp)
	pressKeys(ga, 'h')
	require.IsType(t, &helpDialog{}, ga.dialog)
	pressKeys(ga, term.KeyEscape)
	assert.Nil(t, ga.dialog)
}

func TestChatDialogWrapsLongWord(t *testing.T) {
	deps := newTestDeps()
	avA, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')

	// A single unbreakable word wider than the pane, like a pasted URL.
	long := strings.Repeat("x", 60)
	s := deps.Sessions.Get(deps.Users.Get("alice").JoinedID)
	require.NotNil(t, s)
	s.Chat.Append("alice", long)

	pressKeys(alice, term.KeyTab)
	screen := avA.surf.out.String()
	assert.Contains(t, screen, "[alice]: ")
	assert.Contains(t, screen, long)
}

func TestDialogChangeCancelsPendingRedraw(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, bob := login(t, deps, "bob")

	pressKeys(alice, 'i', 'i')
	pressKeys(bob, 'a')
	pressKeys(alice, 's')

	var scheduled []func()
	deps.Schedule = func(d time.Duration, fn func()) *loop.Timer {
		scheduled = append(scheduled, fn)
		return &loop.Timer{}
	}

	ga := currentApp(deps, "alice").(*GameApp)
	avA := deps.Users.Get("alice").Avatar.(*fakeAvatar)

	pressKeys(ga, 'h')
	n := len(scheduled)
	require.Greater(t, n, 0)

	// Closing the dialog drops the stale frame and queues a fresh one.
	pressKeys(ga, 'q')
	require.Greater(t, len(scheduled), n)

	avA.surf.out.Reset()
	scheduled[len(scheduled)-1]()
	assert.NotContains(t, avA.surf.out.String(), "Available Commands")
}
