package web

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	webapp "github.com/onwgo/server/internal/app/web"
	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/registry"
)

func newTestServer() (*Server, *app.Deps) {
	users := registry.NewUserRegistry()
	sessions := registry.NewSessionRegistry(rand.New(rand.NewSource(9)))
	post := func(fn func()) { fn() }
	deps := &app.Deps{
		Users:    users,
		Sessions: sessions,
		Bus:      registry.NewBus(users, sessions, post, zap.NewNop()),
		Log:      zap.NewNop(),
		Rand:     rand.New(rand.NewSource(9)),
		Post:     post,
		Schedule: func(d time.Duration, fn func()) *loop.Timer { fn(); return nil },
	}
	deps.NewWebApp = webapp.NewFactory(deps)
	return NewServer(deps, zap.NewNop()), deps
}

// doLogin posts the login form and returns the cookie header to reuse.
func doLogin(t *testing.T, s *Server, user string) string {
	t.Helper()
	form := url.Values{"name": {user}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/lobby", rec.Header().Get("Location"))
	cookie := rec.Header().Get("Set-Cookie")
	require.NotEmpty(t, cookie)
	return strings.Split(cookie, ";")[0]
}

func get(s *Server, path, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(s *Server, path, cookie string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func drain(t *testing.T, s *Server, user string) []string {
	t.Helper()
	av := s.avatarFor(user)
	require.NotNil(t, av)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return av.NextEvents(ctx)
}

func TestRootRedirectsToLobby(t *testing.T) {
	s, _ := newTestServer()
	rec := get(s, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/lobby", rec.Header().Get("Location"))
}

func TestPagesRequireLogin(t *testing.T) {
	s, _ := newTestServer()
	for _, path := range []string{"/lobby", "/werewolves"} {
		rec := get(s, path, "")
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
	rec := postForm(s, "/action", "", url.Values{"command": {"0"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginBuildsLobbyApp(t *testing.T) {
	s, deps := newTestServer()
	cookie := doLogin(t, s, "alice")

	entry := deps.Users.Get("alice")
	require.NotNil(t, entry)
	require.IsType(t, &webapp.LobbyApp{}, entry.App)
	require.IsType(t, &Avatar{}, entry.Avatar)

	rec := get(s, "/lobby", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource('/subscribe')")
}

func TestActionProducesOutputEvent(t *testing.T) {
	s, _ := newTestServer()
	cookie := doLogin(t, s, "alice")
	drain(t, s, "alice") // discard the login burst

	rec := postForm(s, "/action", cookie, url.Values{"command": {"1"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	events := drain(t, s, "alice")
	require.NotEmpty(t, events)
	joined := strings.Join(events, "\n")
	assert.Contains(t, joined, "Available Players:")
}

func TestSubscribeStreamsBufferedEvents(t *testing.T) {
	s, _ := newTestServer()
	cookie := doLogin(t, s, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/subscribe", nil).WithContext(ctx)
	req.Header.Set("Cookie", cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, "You are not part of any session.")
	assert.Contains(t, body, "\r\n\r\n")
}

func TestWriteSSEFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, writeSSE(rec, `{"status":"ok"}`))
	assert.Equal(t, "data: {\"status\":\"ok\"}\r\n\r\n", rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, writeSSE(rec, "line one\nline two"))
	assert.Equal(t, "data: line one\r\ndata: line two\r\n\r\n", rec.Body.String())
}

func TestChatEndpoint(t *testing.T) {
	s, deps := newTestServer()
	aliceCookie := doLogin(t, s, "alice")
	doLogin(t, s, "bob")

	// alice invites bob and bob accepts, all through posted action ids.
	postForm(s, "/action", aliceCookie, url.Values{"command": {"0"}})
	postForm(s, "/action", aliceCookie, url.Values{"command": {"0"}})
	deps.Users.Get("bob").App.(webapp.Actor).HandleAction(0)

	drain(t, s, "alice")
	rec := postForm(s, "/chat", aliceCookie, url.Values{"message": {"hello"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	events := drain(t, s, "alice")
	assert.Contains(t, strings.Join(events, "\n"), `"sender":"alice"`)
}

func TestGameUpdateKeysValidated(t *testing.T) {
	s, _ := newTestServer()
	cookie := doLogin(t, s, "alice")

	rec := get(s, "/werewolves/actions", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(s, "/werewolves/bogus", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutDestroysEntry(t *testing.T) {
	s, deps := newTestServer()
	cookie := doLogin(t, s, "alice")

	rec := get(s, "/logout", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Nil(t, deps.Users.Get("alice"))
}

// TestLogoutDuringGameFreesSession drives the whole logoff flow through a
// real queueing loop, so the per-recipient signal deliveries land after the
// logout closure, the way they do in production.
func TestLogoutDuringGameFreesSession(t *testing.T) {
	users := registry.NewUserRegistry()
	sessions := registry.NewSessionRegistry(rand.New(rand.NewSource(9)))
	lp := loop.New(64, zap.NewNop())
	deps := &app.Deps{
		Users:    users,
		Sessions: sessions,
		Bus:      registry.NewBus(users, sessions, lp.Post, zap.NewNop()),
		Log:      zap.NewNop(),
		Rand:     rand.New(rand.NewSource(9)),
		Post:     lp.Post,
		Schedule: lp.Schedule,
	}
	deps.NewWebApp = webapp.NewFactory(deps)
	s := NewServer(deps, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = lp.Run(ctx) }()
	sync := func() {
		ch := make(chan struct{})
		deps.Post(func() { close(ch) })
		<-ch
	}
	// settle drains the queue including work the drained callbacks queued.
	settle := func() { sync(); sync(); sync() }

	aliceCookie := doLogin(t, s, "alice")
	doLogin(t, s, "bob")
	postForm(s, "/action", aliceCookie, url.Values{"command": {"0"}}) // open the invite dialog
	postForm(s, "/action", aliceCookie, url.Values{"command": {"0"}}) // invite bob
	settle()
	deps.Post(func() { users.Get("bob").App.(webapp.Actor).HandleAction(0) }) // bob accepts
	settle()
	postForm(s, "/action", aliceCookie, url.Values{"command": {"0"}}) // start the game
	settle()
	var sid string
	deps.Post(func() { sid = users.Get("bob").JoinedID })
	sync()
	require.NotEmpty(t, sid)

	rec := get(s, "/logout", aliceCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	settle()

	var aliceEntry *registry.UserEntry
	var session *registry.SessionEntry
	var bobApp registry.Application
	deps.Post(func() {
		aliceEntry = users.Get("alice")
		session = sessions.Get(sid)
		bobApp = users.Get("bob").App
	})
	sync()
	assert.Nil(t, aliceEntry, "logged-off user must stay deleted")
	assert.Nil(t, session, "session must be destroyed with its last member")
	require.IsType(t, &webapp.LobbyApp{}, bobApp)

	cancel()
	<-done
}

func TestSecondLoginReplacesAvatar(t *testing.T) {
	s, deps := newTestServer()
	doLogin(t, s, "alice")
	first := deps.Users.Get("alice").App
	oldAvatar := s.avatarFor("alice")

	doLogin(t, s, "alice")
	assert.Same(t, first, deps.Users.Get("alice").App)
	assert.NotSame(t, oldAvatar, s.avatarFor("alice"))

	// The replaced avatar was told to go away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := oldAvatar.NextEvents(ctx)
	assert.Contains(t, strings.Join(events, "\n"), "Another avatar has logged in")

	// The fresh avatar got the state replay.
	events = drain(t, s, "alice")
	assert.Contains(t, strings.Join(events, "\n"), "You are not part of any session.")
}
