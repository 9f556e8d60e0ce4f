package registry

// Kind distinguishes the two transport flavours an application can drive.
type Kind int

const (
	KindTerminal Kind = iota
	KindWeb
)

func (k Kind) String() string {
	if k == KindWeb {
		return "web"
	}
	return "terminal"
}

// Signal is a typed event delivered between applications in one session.
type Signal struct {
	Name    string
	Payload any
}

// Signal names understood by the application adapters.
const (
	SigNextPhase       = "next-phase"
	SigChatMessage     = "chat-message"
	SigShutdown        = "shutdown"
	SigReset           = "reset"
	SigInviteCancelled = "invite-cancelled"
	SigNewSettings     = "new-settings"
)

// Avatar is the per-connection handle for a logged-in user. Terminal and web
// transports provide richer concrete types; applications that need transport
// specifics type-assert the avatar they are handed.
type Avatar interface {
	UserID() string
	// SendMessage displays a plain text message on the connected client.
	SendMessage(msg string)
	// ShutDown closes the client because a newer avatar replaced this one.
	// The application survives.
	ShutDown()
}

// Application is the user-scoped state driver. It outlives any single
// connection and can reincarnate itself under the other transport.
type Application interface {
	Kind() Kind
	UserID() string
	ReceiveSignal(sig Signal)
	// ProduceCompatible returns an application of the requested kind bound to
	// the same user, session, and game state. If the receiver already is of
	// that kind it reattaches to the avatar and returns itself.
	ProduceCompatible(kind Kind, avatar Avatar) Application
}
