// Package lobby implements the per-user pre-game state machine: creating a
// session, inviting players, accepting or rejecting, and handing off to the
// game. Registry side effects (joining, leaving, destroying sessions) are
// performed by the application adapters around the transition calls, never
// inside the machine.
package lobby

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an input the current state does not
// define.
var ErrInvalidTransition = errors.New("invalid lobby transition")

// State enumerates the lobby machine's states.
type State int

const (
	StateStart State = iota
	StateUnjoined
	StateWaitingForAccepts
	StateInvited
	StateAccepted
	StateSessionStarted
)

var stateNames = [...]string{
	StateStart:             "start",
	StateUnjoined:          "unjoined",
	StateWaitingForAccepts: "waiting_for_accepts",
	StateInvited:           "invited",
	StateAccepted:          "accepted",
	StateSessionStarted:    "session_started",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Input enumerates the machine's inputs.
type Input int

const (
	Initialize Input = iota
	CreateSession
	ReceiveInvitation
	SendInvitation
	StartSession
	Cancel
	Accept
	Reject
	RevokeInvitation
)

var inputNames = [...]string{
	Initialize:        "initialize",
	CreateSession:     "create_session",
	ReceiveInvitation: "receive_invitation",
	SendInvitation:    "send_invitation",
	StartSession:      "start_session",
	Cancel:            "cancel",
	Accept:            "accept",
	Reject:            "reject",
	RevokeInvitation:  "revoke_invitation",
}

func (i Input) String() string {
	if i < 0 || int(i) >= len(inputNames) {
		return "unknown"
	}
	return inputNames[i]
}

type transitionKey struct {
	from  State
	input Input
}

var transitions = map[transitionKey]State{
	{StateStart, Initialize}:                  StateUnjoined,
	{StateUnjoined, CreateSession}:            StateWaitingForAccepts,
	{StateUnjoined, ReceiveInvitation}:        StateInvited,
	{StateWaitingForAccepts, SendInvitation}:  StateWaitingForAccepts,
	{StateWaitingForAccepts, StartSession}:    StateSessionStarted,
	{StateWaitingForAccepts, Cancel}:          StateUnjoined,
	{StateInvited, Accept}:                    StateAccepted,
	{StateInvited, Reject}:                    StateUnjoined,
	{StateInvited, RevokeInvitation}:          StateUnjoined,
	{StateAccepted, StartSession}:             StateSessionStarted,
	{StateAccepted, Cancel}:                   StateUnjoined,
}

// Token is an opaque serialized machine state, used by transport migration.
type Token struct {
	State State
}

// Machine is a per-user lobby state machine. OnEnter, if set, is invoked on
// every state entry, including the replay performed by Restore.
type Machine struct {
	state   State
	OnEnter func(State)
}

// New returns a machine in the start state.
func New() *Machine {
	return &Machine{state: StateStart}
}

func (m *Machine) State() State { return m.state }

// Fire applies input to the current state. Undefined combinations return
// ErrInvalidTransition and leave the state unchanged.
func (m *Machine) Fire(input Input) error {
	next, ok := transitions[transitionKey{m.state, input}]
	if !ok {
		return fmt.Errorf("input %s in state %s: %w", input, m.state, ErrInvalidTransition)
	}
	m.state = next
	if m.OnEnter != nil {
		m.OnEnter(next)
	}
	return nil
}

// Serialize captures the machine state as a token.
func (m *Machine) Serialize() Token {
	return Token{State: m.state}
}

// Restore sets the machine to the token's state and replays the entry
// handler for it.
func (m *Machine) Restore(tok Token) {
	m.state = tok.State
	if m.OnEnter != nil {
		m.OnEnter(m.state)
	}
}
