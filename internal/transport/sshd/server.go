package sshd

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/term"
)

// keyHandler and resizer are the input surfaces of the terminal
// applications; lookups go through the registry so an app swap mid-session
// is picked up on the next keystroke.
type keyHandler interface{ HandleKey(k term.Key) }
type resizer interface{ Resize(w, h int) }

// Server accepts SSH connections, authenticates them against the user key
// database, and bridges the session channel to a terminal application.
type Server struct {
	deps *app.Deps
	log  *zap.Logger
	cfg  *ssh.ServerConfig
}

func NewServer(deps *app.Deps, log *zap.Logger, hostKey ssh.Signer, userKeys UserKeyDB) *Server {
	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if userKeys.Match(meta.User(), key) {
				return nil, nil
			}
			return nil, fmt.Errorf("no authorized key for user %q", meta.User())
		},
	}
	cfg.AddHostKey(hostKey)
	return &Server{deps: deps, log: log, cfg: cfg}
}

// Serve runs the SSH listener until ctx ends.
func (s *Server) Serve(ctx context.Context, endpoint string) error {
	ln, err := net.Listen("tcp", endpoint)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.log.Info("ssh transport listening", zap.String("endpoint", endpoint))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.cfg)
	if err != nil {
		s.log.Debug("ssh handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			s.log.Debug("channel accept failed", zap.Error(err))
			continue
		}
		go s.handleSession(sconn.User(), ch, chReqs)
	}
}

// handleSession bridges one session channel: channel requests carry the
// terminal size, the data stream carries keystrokes.
func (s *Server) handleSession(user string, ch ssh.Channel, reqs <-chan *ssh.Request) {
	av := newAvatar(user, ch)
	s.attach(user, av)
	s.log.Info("ssh login", zap.String("user", user))

	go func() {
		for req := range reqs {
			switch req.Type {
			case "pty-req":
				if w, h, ok := parsePtyReq(req.Payload); ok {
					s.postResize(user, w, h)
				}
				req.Reply(true, nil)
			case "window-change":
				if w, h, ok := parseWindowChange(req.Payload); ok {
					s.postResize(user, w, h)
				}
			case "shell":
				req.Reply(len(req.Payload) == 0, nil)
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}()

	dec := &term.KeyDecoder{}
	buf := make([]byte, 256)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			for _, k := range dec.Feed(buf[:n]) {
				key := k
				s.deps.Post(func() { s.dispatchKey(user, key) })
			}
		}
		if err != nil {
			break
		}
	}

	s.deps.Post(func() {
		entry := s.deps.Users.Get(user)
		if entry != nil && entry.Avatar == registry.Avatar(av) {
			entry.Avatar = nil
		}
	})
	av.Close()
	s.log.Info("ssh disconnect", zap.String("user", user))
}

// attach binds a fresh avatar to the user, replacing any live one, and
// produces a terminal application carrying over whatever state the user
// holds.
func (s *Server) attach(user string, av *Avatar) {
	s.deps.Post(func() {
		entry := s.deps.Users.Register(user)
		if entry.Avatar != nil {
			entry.Avatar.ShutDown()
		}
		entry.Avatar = av
		if entry.App == nil {
			entry.App = s.deps.NewTerminalApp(user, av, lobby.Token{State: lobby.StateStart})
		} else {
			entry.App = entry.App.ProduceCompatible(registry.KindTerminal, av)
		}
	})
}

func (s *Server) postResize(user string, w, h int) {
	s.deps.Post(func() {
		entry := s.deps.Users.Get(user)
		if entry == nil {
			return
		}
		if r, ok := entry.App.(resizer); ok {
			r.Resize(w, h)
		}
	})
}

func (s *Server) dispatchKey(user string, k term.Key) {
	entry := s.deps.Users.Get(user)
	if entry == nil {
		return
	}
	if h, ok := entry.App.(keyHandler); ok {
		h.HandleKey(k)
	}
}

// parsePtyReq extracts the terminal dimensions from a pty-req payload: a
// length-prefixed TERM string, then columns and rows.
func parsePtyReq(b []byte) (w, h int, ok bool) {
	if len(b) < 4 {
		return 0, 0, false
	}
	termLen := binary.BigEndian.Uint32(b)
	rest := b[4:]
	if uint64(termLen)+8 > uint64(len(rest)) {
		return 0, 0, false
	}
	rest = rest[termLen:]
	return int(binary.BigEndian.Uint32(rest)), int(binary.BigEndian.Uint32(rest[4:])), true
}

// parseWindowChange extracts columns and rows from a window-change payload.
func parseWindowChange(b []byte) (w, h int, ok bool) {
	if len(b) < 8 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint32(b)), int(binary.BigEndian.Uint32(b[4:])), true
}
