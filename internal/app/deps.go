// Package app contains the transport-independent application layer: the
// dependency bundle handed to every application, and the choreography that
// drives the lobby and game machines around their transitions.
package app

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/data"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
)

// Supplemental signal names used by the lobby choreography, alongside the
// session-scoped names defined in the registry package.
const (
	SigInvitation       = "invitation"
	SigLobbyUpdate      = "lobby-update"
	SigSessionStarted   = "session-started"
	SigSessionCancelled = "session-cancelled"
)

// InvitePayload accompanies an invitation signal.
type InvitePayload struct {
	SessionID string
	From      string
}

// ShutdownPayload accompanies a shutdown signal.
type ShutdownPayload struct {
	Initiator string
}

// AppFactory builds an application of one transport kind for a user,
// restoring the given lobby token. The avatar is the connection the new
// application will render to.
type AppFactory func(user string, avatar registry.Avatar, tok lobby.Token) registry.Application

// Deps bundles everything an application needs. One instance is built at
// startup and shared; all access happens on the core loop.
type Deps struct {
	Users    *registry.UserRegistry
	Sessions *registry.SessionRegistry
	Bus      *registry.Bus
	Roles    *data.RoleTable
	Log      *zap.Logger
	Rand     *rand.Rand

	// Post and Schedule hand work to the core loop. Wired to loop.Post and
	// loop.Schedule at startup.
	Post     func(fn func())
	Schedule func(d time.Duration, fn func()) *loop.Timer

	// Cross-transport factories, set during wiring. Used by transport
	// migration to build the peer application without an import cycle.
	NewTerminalApp AppFactory
	NewWebApp      AppFactory
}

// SignalUser delivers sig directly to one user's application, scheduled on
// the loop. Used for signals that target a single user rather than a
// session's membership (invitations, revocations).
func (d *Deps) SignalUser(userID string, sig registry.Signal) {
	entry := d.Users.Get(userID)
	if entry == nil || entry.App == nil {
		return
	}
	app := entry.App
	d.Post(func() { app.ReceiveSignal(sig) })
}

// FactoryFor returns the application factory for kind.
func (d *Deps) FactoryFor(kind registry.Kind) AppFactory {
	if kind == registry.KindWeb {
		return d.NewWebApp
	}
	return d.NewTerminalApp
}
