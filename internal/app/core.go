package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
)

var (
	ErrNoSuchUser      = errors.New("no such user")
	ErrUserUnavailable = errors.New("user is already in a session or invited")
	ErrNotOwner        = errors.New("only the session owner may do that")
	ErrNoSession       = errors.New("no active session")
)

// Core is the transport-independent half of an application: the user's lobby
// machine plus the choreography that keeps the registries, the machine, and
// the other members' applications consistent. The terminal and web adapters
// embed one Core each and layer rendering on top.
type Core struct {
	Deps  *Deps
	User  string
	Lobby *lobby.Machine
}

func NewCore(deps *Deps, user string) *Core {
	return &Core{Deps: deps, User: user, Lobby: lobby.New()}
}

// Entry returns the user's registry entry.
func (c *Core) Entry() *registry.UserEntry {
	return c.Deps.Users.Register(c.User)
}

// Session returns the session the user has joined, or nil.
func (c *Core) Session() *registry.SessionEntry {
	sid := c.Entry().JoinedID
	if sid == "" {
		return nil
	}
	return c.Deps.Sessions.Get(sid)
}

// Game returns the joined session's game machine, or nil.
func (c *Core) Game() *game.Machine {
	if s := c.Session(); s != nil {
		return s.Game
	}
	return nil
}

// AvailablePlayers lists users who are neither joined to nor invited into
// any session (including the caller), sorted.
func (c *Core) AvailablePlayers() []string {
	var out []string
	for _, e := range c.Deps.Users.Users(func(e *registry.UserEntry) bool {
		return e.JoinedID == "" && e.InvitedID == ""
	}) {
		out = append(out, e.ID)
	}
	return out
}

// StatusLine renders the lobby status for the current state.
func (c *Core) StatusLine() string {
	entry := c.Entry()
	switch c.Lobby.State() {
	case lobby.StateWaitingForAccepts:
		return fmt.Sprintf("Session %s - Waiting for Responses", entry.JoinedID)
	case lobby.StateInvited:
		owner := ""
		if s := c.Deps.Sessions.Get(entry.InvitedID); s != nil {
			owner = s.Owner
		}
		return fmt.Sprintf("%s has invited you to join session %s.", owner, entry.InvitedID)
	case lobby.StateAccepted:
		return fmt.Sprintf("Session %s - Waiting for the session to start ...", entry.JoinedID)
	case lobby.StateSessionStarted:
		return fmt.Sprintf("Session %s", entry.JoinedID)
	}
	return "You are not part of any session."
}

// Invite invites target into the caller's session, creating the session
// lazily on the first invite.
func (c *Core) Invite(target string) error {
	if target == c.User {
		return fmt.Errorf("invite self: %w", ErrUserUnavailable)
	}
	te := c.Deps.Users.Get(target)
	if te == nil {
		return fmt.Errorf("invite %q: %w", target, ErrNoSuchUser)
	}
	if te.JoinedID != "" || te.InvitedID != "" {
		return fmt.Errorf("invite %q: %w", target, ErrUserUnavailable)
	}

	entry := c.Entry()
	if entry.JoinedID == "" {
		s, err := c.Deps.Sessions.Create(c.User)
		if err != nil {
			return err
		}
		entry.JoinedID = s.ID
		if err := c.Lobby.Fire(lobby.CreateSession); err != nil {
			return err
		}
	}
	if err := c.Lobby.Fire(lobby.SendInvitation); err != nil {
		return err
	}

	te.InvitedID = entry.JoinedID
	c.Deps.SignalUser(target, registry.Signal{
		Name:    SigInvitation,
		Payload: InvitePayload{SessionID: entry.JoinedID, From: c.User},
	})
	return nil
}

// AcceptInvite joins the session the user was invited into.
func (c *Core) AcceptInvite() error {
	entry := c.Entry()
	s := c.Deps.Sessions.Get(entry.InvitedID)
	if s == nil {
		return fmt.Errorf("accept: %w", ErrNoSession)
	}
	if err := c.Lobby.Fire(lobby.Accept); err != nil {
		return err
	}
	entry.InvitedID = ""
	entry.JoinedID = s.ID
	s.AddMember(c.User)
	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: SigLobbyUpdate}, registry.SendOpts{IncludeInvited: true})
	return nil
}

// RejectInvite declines the pending invitation.
func (c *Core) RejectInvite() error {
	entry := c.Entry()
	sid := entry.InvitedID
	if err := c.Lobby.Fire(lobby.Reject); err != nil {
		return err
	}
	entry.InvitedID = ""
	if sid != "" {
		c.Deps.Bus.SendToMembers(sid, registry.Signal{Name: SigLobbyUpdate}, registry.SendOpts{})
	}
	return nil
}

// StartGame deals a game for the session and tells every member to enter it.
// Outstanding invitations are revoked.
func (c *Core) StartGame() error {
	s := c.Session()
	if s == nil {
		return ErrNoSession
	}
	if s.Owner != c.User {
		return ErrNotOwner
	}

	m := game.New(s.Members(), nil)
	if err := m.DealCards(s.Settings.Werewolves, s.Settings.EnabledRoles()); err != nil {
		return err
	}
	s.Game = m

	// Revoke pending invitations before the game locks the member set.
	for _, e := range c.Deps.Users.Users(func(e *registry.UserEntry) bool { return e.InvitedID == s.ID }) {
		e.InvitedID = ""
		c.Deps.SignalUser(e.ID, registry.Signal{Name: registry.SigInviteCancelled, Payload: s.Owner})
	}

	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: SigSessionStarted}, registry.SendOpts{})
	return nil
}

// CancelSession tears the pre-game session down. Owner only; accepted
// members revert to the lobby and invited users lose their invitation.
func (c *Core) CancelSession() error {
	s := c.Session()
	if s == nil {
		return ErrNoSession
	}
	if s.Owner != c.User {
		return ErrNotOwner
	}

	for _, e := range c.Deps.Users.Users(func(e *registry.UserEntry) bool { return e.InvitedID == s.ID }) {
		e.InvitedID = ""
		c.Deps.SignalUser(e.ID, registry.Signal{Name: registry.SigInviteCancelled, Payload: c.User})
	}
	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: SigSessionCancelled, Payload: c.User},
		registry.SendOpts{Exclude: []string{c.User}})

	entry := c.Entry()
	entry.JoinedID = ""
	c.Deps.Sessions.Destroy(s.ID)
	return c.Lobby.Fire(lobby.Cancel)
}

// LeaveAccepted withdraws an accepted (but not yet started) membership.
func (c *Core) LeaveAccepted() error {
	s := c.Session()
	if s == nil {
		return ErrNoSession
	}
	if err := c.Lobby.Fire(lobby.Cancel); err != nil {
		return err
	}
	s.RemoveMember(c.User)
	c.Entry().JoinedID = ""
	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: SigLobbyUpdate}, registry.SendOpts{IncludeInvited: true})
	return nil
}

// AdvanceGame signals the user's readiness for the next phase. When the
// phase flips, every member is told to re-render.
func (c *Core) AdvanceGame() error {
	s := c.Session()
	if s == nil || s.Game == nil {
		return ErrNoSession
	}
	advanced, err := s.Game.SignalAdvance(c.User)
	if err != nil {
		return err
	}
	if advanced {
		c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: registry.SigNextPhase}, registry.SendOpts{})
	}
	return nil
}

// VoteGame casts the user's daybreak vote.
func (c *Core) VoteGame(target string) error {
	s := c.Session()
	if s == nil || s.Game == nil {
		return ErrNoSession
	}
	advanced, err := s.Game.Vote(c.User, target)
	if err != nil {
		return err
	}
	if advanced {
		c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: registry.SigNextPhase}, registry.SendOpts{})
	}
	return nil
}

// SendChat appends a line to the session chat ring and notifies everyone,
// invited users included. Chat without a session is client misuse and is
// ignored.
func (c *Core) SendChat(text string) {
	entry := c.Entry()
	sid := entry.JoinedID
	if sid == "" {
		sid = entry.InvitedID
	}
	s := c.Deps.Sessions.Get(sid)
	if s == nil {
		c.Deps.Log.Debug("chat with no active session dropped", zap.String("user", c.User))
		return
	}
	s.Chat.Append(c.User, text)
	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: registry.SigChatMessage, Payload: c.User},
		registry.SendOpts{IncludeInvited: true})
}

// ShutdownSession announces that the user is leaving a running game. Every
// member (and invited user) receives the shutdown signal, the emitter
// included; recipients clear their own bindings in their signal handlers.
func (c *Core) ShutdownSession() {
	s := c.Session()
	if s == nil {
		return
	}
	c.Deps.Bus.SendToMembers(s.ID,
		registry.Signal{Name: registry.SigShutdown, Payload: ShutdownPayload{Initiator: c.User}},
		registry.SendOpts{IncludeInvited: true})
}

// LeaveCurrentSession drops the user's membership. The session is destroyed
// once the last member is gone.
func (c *Core) LeaveCurrentSession() {
	entry := c.Entry()
	sid := entry.JoinedID
	if sid == "" {
		return
	}
	if s := c.Deps.Sessions.Get(sid); s != nil {
		s.RemoveMember(c.User)
		if s.MemberCount() == 0 {
			c.Deps.Sessions.Destroy(sid)
		}
	}
	entry.JoinedID = ""
}

// ResetGame applies new settings and re-deals. Owner only; members receive
// the reset signal.
func (c *Core) ResetGame(settings registry.Settings) error {
	s := c.Session()
	if s == nil {
		return ErrNoSession
	}
	if s.Owner != c.User {
		return ErrNotOwner
	}
	s.Settings = settings
	m := game.New(s.Members(), nil)
	if err := m.DealCards(settings.Werewolves, settings.EnabledRoles()); err != nil {
		return err
	}
	s.Game = m
	c.Deps.Bus.SendToMembers(s.ID,
		registry.Signal{Name: registry.SigNewSettings, Payload: settings}, registry.SendOpts{})
	c.Deps.Bus.SendToMembers(s.ID, registry.Signal{Name: registry.SigReset}, registry.SendOpts{})
	return nil
}

// HandleInviteSignal fires receive_invitation when an invitation signal
// arrives, keeping the registry bookkeeping the inviter already wrote.
func (c *Core) HandleInviteSignal() error {
	return c.Lobby.Fire(lobby.ReceiveInvitation)
}

// HandleInviteCancelled drops pending-invitation bookkeeping.
func (c *Core) HandleInviteCancelled() error {
	c.Entry().InvitedID = ""
	return c.Lobby.Fire(lobby.RevokeInvitation)
}

// HandleSessionStarted fires the hand-off transition when the owner starts
// the game.
func (c *Core) HandleSessionStarted() error {
	return c.Lobby.Fire(lobby.StartSession)
}

// HandleSessionCancelled reverts an accepted member to unjoined after the
// owner cancelled the pre-game session.
func (c *Core) HandleSessionCancelled() error {
	entry := c.Entry()
	sid := entry.JoinedID
	entry.JoinedID = ""
	if s := c.Deps.Sessions.Get(sid); s != nil {
		s.RemoveMember(c.User)
	}
	return c.Lobby.Fire(lobby.Cancel)
}
