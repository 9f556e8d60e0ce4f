package web

import (
	"math/rand"
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
)

type fakeSink struct {
	user   string
	events []map[string]any
}

func (f *fakeSink) UserID() string       { return f.user }
func (f *fakeSink) SendMessage(string)   {}
func (f *fakeSink) ShutDown()            {}
func (f *fakeSink) SendEvent(ev map[string]any) {
	f.events = append(f.events, ev)
}

// last returns the most recent event carrying the given key.
func (f *fakeSink) last(key string) (any, bool) {
	for i := len(f.events) - 1; i >= 0; i-- {
		if v, ok := f.events[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

func newTestDeps() *app.Deps {
	users := registry.NewUserRegistry()
	sessions := registry.NewSessionRegistry(rand.New(rand.NewSource(5)))
	post := func(fn func()) { fn() }
	deps := &app.Deps{
		Users:    users,
		Sessions: sessions,
		Bus:      registry.NewBus(users, sessions, post, zap.NewNop()),
		Log:      zap.NewNop(),
		Rand:     rand.New(rand.NewSource(5)),
		Post:     post,
		Schedule: func(d time.Duration, fn func()) *loop.Timer { fn(); return nil },
	}
	deps.NewWebApp = NewFactory(deps)
	return deps
}

func login(t *testing.T, deps *app.Deps, user string) (*fakeSink, Actor) {
	t.Helper()
	sink := &fakeSink{user: user}
	a := New(deps, user, sink, lobby.Token{State: lobby.StateStart})
	entry := deps.Users.Register(user)
	entry.Avatar = sink
	entry.App = a
	return sink, a.(Actor)
}

func currentActor(deps *app.Deps, user string) Actor {
	return deps.Users.Get(user).App.(Actor)
}

func startGame(t *testing.T, deps *app.Deps) (alice, bob *fakeSink) {
	t.Helper()
	alice, a := login(t, deps, "alice")
	bob, _ = login(t, deps, "bob")
	a.HandleAction(0) // open choose-players dialog
	a.HandleAction(0) // invite bob
	currentActor(deps, "bob").HandleAction(0) // accept
	currentActor(deps, "alice").HandleAction(0) // start
	return alice, bob
}

func TestLobbyEmitsStatusAndActions(t *testing.T) {
	deps := newTestDeps()
	sink, _ := login(t, deps, "alice")

	status, ok := sink.last("status")
	require.True(t, ok)
	assert.Equal(t, "You are not part of any session.", status)

	actions, ok := sink.last("actions")
	require.True(t, ok)
	assert.Len(t, actions.([]Action), 2)
}

func TestListPlayersAction(t *testing.T) {
	deps := newTestDeps()
	sink, a := login(t, deps, "alice")

	a.HandleAction(1)
	out, ok := sink.last("output")
	require.True(t, ok)
	assert.Equal(t, "Available Players:\nalice", out)
}

func TestInviteDialogFlow(t *testing.T) {
	deps := newTestDeps()
	avA, alice := login(t, deps, "alice")
	avB, _ := login(t, deps, "bob")

	alice.HandleAction(0)
	dlg, ok := avA.last("show-dialog")
	require.True(t, ok)
	info := dlg.(map[string]any)
	assert.Equal(t, "choose-players", info["dialog-type"])
	actions := info["actions"].([]Action)
	require.Len(t, actions, 2)
	assert.Equal(t, "bob", actions[0].Label)
	assert.Equal(t, "Stop inviting players", actions[1].Label)

	// Dialog ids shadow the state actions while the dialog is up.
	alice.HandleAction(0)
	out, ok := avA.last("output")
	require.True(t, ok)
	assert.Equal(t, "Sent invite to 'bob'.", out)
	_, ok = avA.last("hide-dialog")
	assert.True(t, ok)

	status, ok := avB.last("status")
	require.True(t, ok)
	assert.Contains(t, status, "alice has invited you to join session")
	assert.Equal(t, lobby.StateInvited, tokenOf(deps, "bob").State)
}

func tokenOf(deps *app.Deps, user string) lobby.Token {
	switch a := deps.Users.Get(user).App.(type) {
	case *LobbyApp:
		return a.core.Lobby.Serialize()
	case *GameApp:
		return a.core.Lobby.Serialize()
	}
	return lobby.Token{}
}

func TestStopInvitingClosesDialog(t *testing.T) {
	deps := newTestDeps()
	avA, alice := login(t, deps, "alice")
	login(t, deps, "bob")

	alice.HandleAction(0)
	alice.HandleAction(1) // "Stop inviting players"
	_, ok := avA.last("hide-dialog")
	assert.True(t, ok)

	// Back on the state table: 1 is now list-players again.
	alice.HandleAction(1)
	out, ok := avA.last("output")
	require.True(t, ok)
	assert.Contains(t, out, "Available Players:")
}

func TestStartInstallsGameApp(t *testing.T) {
	deps := newTestDeps()
	alice, bob := startGame(t, deps)

	require.IsType(t, &GameApp{}, deps.Users.Get("alice").App)
	require.IsType(t, &GameApp{}, deps.Users.Get("bob").App)

	res, ok := alice.last("install-app")
	require.True(t, ok)
	assert.Equal(t, "/werewolves", res)

	_, ok = bob.last("install-app")
	assert.True(t, ok)
}

func TestRequestAllPushesGameState(t *testing.T) {
	deps := newTestDeps()
	alice, _ := startGame(t, deps)

	currentActor(deps, "alice").RequestUpdate("request-all")

	pi, ok := alice.last("phase-info")
	require.True(t, ok)
	assert.Equal(t, "Twilight", pi.([]string)[0])

	player, ok := alice.last("player-info")
	require.True(t, ok)
	assert.Equal(t, "alice", player.(map[string]any)["user_id"])

	gi, ok := alice.last("game-info")
	require.True(t, ok)
	// Two players deal five cards: two to hand, three to the table.
	total := 0
	for _, row := range gi.([][2]any) {
		total += row[1].(int)
	}
	assert.Equal(t, 5, total)

	si, ok := alice.last("settings-info")
	require.True(t, ok)
	assert.Equal(t, 2, si.(map[string]any)["werewolves"])
}

func TestUnknownActionIgnored(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	before := len(deps.Users.Users(nil))
	alice.HandleAction(99)
	assert.Equal(t, before, len(deps.Users.Users(nil)))
}

func TestChatFansOutToMembers(t *testing.T) {
	deps := newTestDeps()
	avA, alice := login(t, deps, "alice")
	avB, _ := login(t, deps, "bob")

	alice.HandleAction(0)
	alice.HandleAction(0)
	currentActor(deps, "bob").HandleAction(0)

	currentActor(deps, "alice").HandleChat("hello")

	for _, sink := range []*fakeSink{avA, avB} {
		chat, ok := sink.last("chat")
		require.True(t, ok)
		m := chat.(map[string]any)
		assert.Equal(t, "alice", m["sender"])
		assert.Equal(t, "hello", m["message"])
	}
}

func TestAdvanceMovesPastTwilight(t *testing.T) {
	deps := newTestDeps()
	alice, bob := startGame(t, deps)

	currentActor(deps, "alice").HandleAction(0)
	pi, _ := alice.last("phase-info")
	assert.Equal(t, "Twilight", pi.([]string)[0])

	currentActor(deps, "bob").HandleAction(0)
	pi, ok := alice.last("phase-info")
	require.True(t, ok)
	assert.NotEqual(t, "Twilight", pi.([]string)[0])
	_, ok = bob.last("phase-info")
	assert.True(t, ok)
}

func TestApplySettingsOwnerOnly(t *testing.T) {
	deps := newTestDeps()
	alice, bob := startGame(t, deps)

	settings := registry.DefaultSettings()
	settings.Werewolves = 3

	bg := deps.Users.Get("bob").App.(*GameApp)
	bg.ApplySettings(settings)
	out, ok := bob.last("output")
	require.True(t, ok)
	assert.Equal(t, "Only the session administrator can modify game settings.", out)

	ag := deps.Users.Get("alice").App.(*GameApp)
	old := ag.core.Game()
	ag.ApplySettings(settings)
	assert.NotSame(t, old, ag.core.Game())
	assert.Equal(t, 3, ag.core.Session().Settings.Werewolves)

	si, ok := alice.last("settings-info")
	require.True(t, ok)
	assert.Equal(t, 3, si.(map[string]any)["werewolves"])
}

func TestLogoffShutsDownSession(t *testing.T) {
	deps := newTestDeps()
	_, bob := startGame(t, deps)

	sid := deps.Users.Get("alice").JoinedID
	currentActor(deps, "alice").Logoff()
	deps.Users.Logoff("alice")

	// Bob was told who left and is back in the lobby; the session is gone
	// and alice's deleted entry stays deleted.
	sd, ok := bob.last("shut-down")
	require.True(t, ok)
	assert.Equal(t, "alice has left the game.", sd.(map[string]any)["message"])
	require.IsType(t, &LobbyApp{}, deps.Users.Get("bob").App)
	assert.Nil(t, deps.Sessions.Get(sid))
	assert.Nil(t, deps.Users.Get("alice"))
}

func TestLobbyLogoffReleasesInvite(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, _ = login(t, deps, "bob")

	alice.HandleAction(0)
	alice.HandleAction(0)

	currentActor(deps, "bob").Logoff()
	assert.Empty(t, deps.Users.Get("bob").InvitedID)
	assert.Equal(t, lobby.StateUnjoined, tokenOf(deps, "bob").State)
}

func TestProduceCompatibleCrossKind(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")
	_, _ = login(t, deps, "bob")

	alice.HandleAction(0)
	alice.HandleAction(0)

	var gotUser string
	var gotTok lobby.Token
	stub := &stubApp{}
	deps.NewTerminalApp = func(user string, avatar registry.Avatar, tok lobby.Token) registry.Application {
		gotUser, gotTok = user, tok
		return stub
	}

	peer := deps.Users.Get("alice").App.ProduceCompatible(registry.KindTerminal, &fakeSink{user: "alice"})
	assert.Same(t, registry.Application(stub), peer)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, lobby.StateWaitingForAccepts, gotTok.State)
}

type stubApp struct{}

func (s *stubApp) Kind() registry.Kind            { return registry.KindTerminal }
func (s *stubApp) UserID() string                 { return "" }
func (s *stubApp) ReceiveSignal(registry.Signal)  {}
func (s *stubApp) ProduceCompatible(registry.Kind, registry.Avatar) registry.Application {
	return s
}

func TestReconnectRebindsSink(t *testing.T) {
	deps := newTestDeps()
	_, alice := login(t, deps, "alice")

	replacement := &fakeSink{user: "alice"}
	again := alice.ProduceCompatible(registry.KindWeb, replacement)
	assert.Same(t, registry.Application(alice.(*LobbyApp)), again)

	status, ok := replacement.last("status")
	require.True(t, ok)
	assert.Equal(t, "You are not part of any session.", status)
}

func TestVoteActionCountsAndFinishes(t *testing.T) {
	deps := newTestDeps()
	alice, _ := startGame(t, deps)

	// Drive both players through every phase with advance actions and power
	// skips until daybreak.
	m := deps.Users.Get("alice").App.(*GameApp).core.Game()
	require.NotNil(t, m)
	for i := 0; i < 20 && phaseOf(m.State()) != game.StateDaybreak; i++ {
		for _, user := range []string{"alice", "bob"} {
			a := deps.Users.Get(user).App.(*GameApp)
			a.rebuildPhase()
			// Action 0 is advance or the power skip in every phase.
			if _, ok := a.handlers[0]; ok {
				a.HandleAction(0)
			}
		}
	}
	require.Equal(t, game.StateDaybreak, phaseOf(m.State()))

	for _, user := range []string{"alice", "bob"} {
		a := deps.Users.Get(user).App.(*GameApp)
		a.rebuildPhase()
		a.HandleAction(0)
	}
	require.Equal(t, game.StateEndgame, m.State())

	pgr, ok := alice.last("post-game-results")
	require.True(t, ok)
	res := pgr.(map[string]any)
	assert.NotEmpty(t, res["winner-text"])
	assert.Len(t, res["voting-table"], 2)
	assert.Len(t, res["player-role-table"], 2)
	assert.Len(t, res["table-roles"], 3)
}
