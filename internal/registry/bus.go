package registry

import (
	"go.uber.org/zap"
)

// SendOpts tunes signal fan-out: IncludeInvited also delivers to users whose
// pending invitation points at the session; Exclude suppresses delivery to
// the listed user ids (typically the emitter).
type SendOpts struct {
	IncludeInvited bool
	Exclude        []string
}

// Bus fans session-scoped signals out to the applications of the session's
// members. Deliveries are scheduled on the core loop, one callback per
// recipient, so a recipient observes one emitter's signals in program order.
type Bus struct {
	users    *UserRegistry
	sessions *SessionRegistry
	post     func(fn func())
	log      *zap.Logger
}

func NewBus(users *UserRegistry, sessions *SessionRegistry, post func(fn func()), log *zap.Logger) *Bus {
	return &Bus{users: users, sessions: sessions, post: post, log: log}
}

// SendToMembers delivers sig to every member of the session (plus invited
// users if requested, minus any excluded). Members without a live
// application are skipped.
func (b *Bus) SendToMembers(sessionID string, sig Signal, opts SendOpts) {
	entry := b.sessions.Get(sessionID)
	if entry == nil {
		b.log.Debug("signal for dead session dropped",
			zap.String("session", sessionID), zap.String("signal", sig.Name))
		return
	}

	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = struct{}{}
	}

	recipients := entry.Members()
	if opts.IncludeInvited {
		for _, u := range b.users.Users(func(e *UserEntry) bool { return e.InvitedID == sessionID }) {
			recipients = append(recipients, u.ID)
		}
	}

	for _, id := range recipients {
		if _, skip := excluded[id]; skip {
			continue
		}
		user := b.users.Get(id)
		if user == nil || user.App == nil {
			continue
		}
		app := user.App
		b.post(func() { app.ReceiveSignal(sig) })
	}
}
