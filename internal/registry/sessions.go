package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/onwgo/server/internal/game"
)

// ErrSessionIDExhausted is returned when 20 consecutive generated session
// ids collided with live sessions.
var ErrSessionIDExhausted = errors.New("session id space exhausted")

// sessionTags are the color prefixes for generated session ids.
var sessionTags = []string{
	"green", "blue", "red", "yellow", "orange", "white", "black", "pink", "purple",
}

const (
	idRetries    = 20
	chatRingSize = 50
)

// Settings are the pending game settings a session owner can edit before
// starting or resetting a game.
type Settings struct {
	Werewolves int
	Roles      map[game.Card]bool
}

// DefaultSettings enables the three classic power roles with two werewolves.
func DefaultSettings() Settings {
	return Settings{
		Werewolves: 2,
		Roles: map[game.Card]bool{
			game.Seer:         true,
			game.Robber:       true,
			game.Troublemaker: true,
			game.Minion:       false,
			game.Insomniac:    false,
			game.Hunter:       false,
			game.Tanner:       false,
		},
	}
}

// EnabledRoles returns the toggled-on optional cards in deck-build order.
func (s Settings) EnabledRoles() []game.Card {
	var out []game.Card
	for _, c := range game.OptionalCards {
		if s.Roles[c] {
			out = append(out, c)
		}
	}
	return out
}

// SessionEntry is the record for one game session.
type SessionEntry struct {
	ID       string
	Owner    string
	members  map[string]struct{}
	Game     *game.Machine
	Chat     *ChatRing
	Settings Settings
}

// Members returns the member ids, sorted.
func (s *SessionEntry) Members() []string {
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *SessionEntry) HasMember(id string) bool {
	_, ok := s.members[id]
	return ok
}

func (s *SessionEntry) AddMember(id string)    { s.members[id] = struct{}{} }
func (s *SessionEntry) RemoveMember(id string) { delete(s.members, id) }
func (s *SessionEntry) MemberCount() int       { return len(s.members) }

// SessionRegistry maps session ids to their entries.
type SessionRegistry struct {
	sessions map[string]*SessionEntry
	rng      *rand.Rand
}

func NewSessionRegistry(rng *rand.Rand) *SessionRegistry {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SessionRegistry{
		sessions: make(map[string]*SessionEntry),
		rng:      rng,
	}
}

// Create makes a new session owned by owner, with the owner as first member,
// a fresh chat ring, and default settings. The id is `<color>-<0..999>`; up
// to 20 collisions are retried before ErrSessionIDExhausted.
func (r *SessionRegistry) Create(owner string) (*SessionEntry, error) {
	id, err := r.generateID()
	if err != nil {
		return nil, err
	}
	e := &SessionEntry{
		ID:       id,
		Owner:    owner,
		members:  map[string]struct{}{owner: {}},
		Chat:     NewChatRing(chatRingSize),
		Settings: DefaultSettings(),
	}
	r.sessions[id] = e
	return e, nil
}

func (r *SessionRegistry) generateID() (string, error) {
	for i := 0; i < idRetries; i++ {
		tag := sessionTags[r.rng.Intn(len(sessionTags))]
		id := fmt.Sprintf("%s-%d", tag, r.rng.Intn(1000))
		if _, taken := r.sessions[id]; !taken {
			return id, nil
		}
	}
	return "", ErrSessionIDExhausted
}

// Get returns the session with id, or nil.
func (r *SessionRegistry) Get(id string) *SessionEntry {
	return r.sessions[id]
}

// Destroy removes the session with id.
func (r *SessionRegistry) Destroy(id string) {
	delete(r.sessions, id)
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	return len(r.sessions)
}
