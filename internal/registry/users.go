// Package registry holds the process-wide user and session tables, the
// session chat ring, and the signal bus. All mutable state in this package
// is accessed only from the core loop goroutine.
package registry

import "sort"

// UserEntry is the canonical record for one logged-in user id. At most one
// of InvitedID/JoinedID is set at any time.
type UserEntry struct {
	ID        string
	Avatar    Avatar
	App       Application
	InvitedID string
	JoinedID  string
}

// UserRegistry maps user ids to their entries.
type UserRegistry struct {
	users map[string]*UserEntry
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*UserEntry)}
}

// Register returns the entry for id, creating it if absent. Idempotent.
func (r *UserRegistry) Register(id string) *UserEntry {
	if e, ok := r.users[id]; ok {
		return e
	}
	e := &UserEntry{ID: id}
	r.users[id] = e
	return e
}

// Get returns the entry for id, or nil.
func (r *UserRegistry) Get(id string) *UserEntry {
	return r.users[id]
}

// Users returns a snapshot of entries matching filter (nil matches all),
// sorted by id. Safe against mutation during iteration of the result.
func (r *UserRegistry) Users(filter func(*UserEntry) bool) []*UserEntry {
	out := make([]*UserEntry, 0, len(r.users))
	for _, e := range r.users {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Logoff destroys the user's connection-side and application state. The
// entry itself is removed; a later login registers afresh.
func (r *UserRegistry) Logoff(id string) {
	e := r.users[id]
	if e == nil {
		return
	}
	e.Avatar = nil
	e.App = nil
	e.InvitedID = ""
	e.JoinedID = ""
	delete(r.users, id)
}
