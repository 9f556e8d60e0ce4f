package web

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	webapp "github.com/onwgo/server/internal/app/web"
	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
)

//go:embed static
var staticFS embed.FS

const sessionName = "werewolves"

// Server is the HTTP transport. All game state access happens via Deps.Post;
// request goroutines never touch the registries directly.
type Server struct {
	deps  *app.Deps
	log   *zap.Logger
	store *sessions.CookieStore
	mux   *http.ServeMux
}

func NewServer(deps *app.Deps, log *zap.Logger) *Server {
	s := &Server{
		deps:  deps,
		log:   log,
		store: sessions.NewCookieStore(securecookie.GenerateRandomKey(32)),
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/lobby", s.page("static/lobby.html"))
	s.mux.HandleFunc("/werewolves", s.page("static/werewolves.html"))
	s.mux.HandleFunc("/werewolves/", s.handleGameUpdate)
	s.mux.HandleFunc("/action", s.handleAction)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/settings", s.handleSettings)
	s.mux.HandleFunc("/subscribe", s.handleSubscribe)
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve runs the HTTP listener until ctx ends.
func (s *Server) Serve(ctx context.Context, endpoint string) error {
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("web transport listening", zap.String("endpoint", endpoint))
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// user extracts the logged-in user id from the cookie session.
func (s *Server) user(r *http.Request) (string, bool) {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	user, ok := sess.Values["user"].(string)
	return user, ok && user != ""
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/lobby", http.StatusFound)
}

// serveFileFS is http.ServeFileFS, which is unavailable before Go 1.22.
func serveFileFS(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	f, err := fsys.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, "unsupported file", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), rs)
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.user(r); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		serveFileFS(w, r, staticFS, name)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		serveFileFS(w, r, staticFS, "static/login.html")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	sess, _ := s.store.Get(r, sessionName)
	sess.Values["user"] = name
	if err := sess.Save(r, w); err != nil {
		s.log.Error("save cookie session", zap.Error(err))
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	s.attach(name)
	http.Redirect(w, r, "/lobby", http.StatusFound)
}

// attach binds a fresh avatar to the user, replacing any live one, and
// produces a web application carrying over whatever state the user holds.
func (s *Server) attach(user string) {
	av := newAvatar(user, s.log)
	s.deps.Post(func() {
		entry := s.deps.Users.Register(user)
		if entry.Avatar != nil {
			entry.Avatar.ShutDown()
		}
		entry.Avatar = av
		if entry.App == nil {
			entry.App = s.deps.NewWebApp(user, av, lobby.Token{State: lobby.StateStart})
		} else {
			entry.App = entry.App.ProduceCompatible(registry.KindWeb, av)
		}
		s.log.Info("web login", zap.String("user", user))
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if ok {
		s.deps.Post(func() {
			entry := s.deps.Users.Get(user)
			if entry == nil {
				return
			}
			if actor, ok := entry.App.(webapp.Actor); ok {
				actor.Logoff()
			}
			if av, ok := entry.Avatar.(*Avatar); ok {
				av.close()
			}
			s.deps.Users.Logoff(user)
			s.log.Info("web logout", zap.String("user", user))
		})
	}
	sess, _ := s.store.Get(r, sessionName)
	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// withActor runs fn against the user's application on the core loop.
func (s *Server) withActor(user string, fn func(actor webapp.Actor)) {
	s.deps.Post(func() {
		entry := s.deps.Users.Get(user)
		if entry == nil {
			return
		}
		if actor, ok := entry.App.(webapp.Actor); ok {
			fn(actor)
		}
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if !ok || r.Method != http.MethodPost {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	id, err := strconv.Atoi(r.FormValue("command"))
	if err != nil {
		http.Error(w, "bad command", http.StatusBadRequest)
		return
	}
	s.withActor(user, func(actor webapp.Actor) { actor.HandleAction(id) })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if !ok || r.Method != http.MethodPost {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	msg := r.FormValue("message")
	if msg == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.withActor(user, func(actor webapp.Actor) { actor.HandleChat(msg) })
	w.WriteHeader(http.StatusNoContent)
}

// settingsBody is the JSON the settings form posts.
type settingsBody struct {
	Werewolves int             `json:"werewolves"`
	Roles      map[string]bool `json:"roles"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if !ok || r.Method != http.MethodPost {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var body settingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad settings", http.StatusBadRequest)
		return
	}
	settings := registry.Settings{
		Werewolves: body.Werewolves,
		Roles: map[game.Card]bool{
			game.Seer:         body.Roles["seer"],
			game.Robber:       body.Roles["robber"],
			game.Troublemaker: body.Roles["troublemaker"],
			game.Minion:       body.Roles["minion"],
			game.Insomniac:    body.Roles["insomniac"],
			game.Hunter:       body.Roles["hunter"],
			game.Tanner:       body.Roles["tanner"],
		},
	}
	s.deps.Post(func() {
		entry := s.deps.Users.Get(user)
		if entry == nil {
			return
		}
		if ga, ok := entry.App.(*webapp.GameApp); ok {
			ga.ApplySettings(settings)
		}
	})
	w.WriteHeader(http.StatusNoContent)
}

// gameUpdateKeys are the elements the client may re-request.
var gameUpdateKeys = map[string]bool{
	"actions":     true,
	"phase-info":  true,
	"player-info": true,
	"game-info":   true,
	"output":      true,
	"request-all": true,
}

func (s *Server) handleGameUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/werewolves/")
	if !gameUpdateKeys[key] {
		http.NotFound(w, r)
		return
	}
	s.withActor(user, func(actor webapp.Actor) { actor.RequestUpdate(key) })
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscribe holds the SSE channel open and streams queued events.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	av := s.avatarFor(user)
	if av == nil {
		http.Error(w, "not logged in", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		events := av.NextEvents(r.Context())
		if events == nil {
			return
		}
		for _, event := range events {
			if err := writeSSE(w, event); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// writeSSE frames one event: a "data: " prefix per payload line, then a
// blank line, CRLF line endings throughout.
func writeSSE(w http.ResponseWriter, data string) error {
	for _, line := range strings.Split(data, "\n") {
		if _, err := w.Write([]byte("data: " + line + "\r\n")); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

func (s *Server) avatarFor(user string) *Avatar {
	ch := make(chan *Avatar, 1)
	s.deps.Post(func() {
		entry := s.deps.Users.Get(user)
		if entry != nil {
			if av, ok := entry.Avatar.(*Avatar); ok {
				ch <- av
				return
			}
		}
		ch <- nil
	})
	return <-ch
}
