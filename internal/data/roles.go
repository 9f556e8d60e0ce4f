// Package data loads the static game data tables shipped with the server.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleEntry describes one role card: its display metadata and the text shown
// during that role's night phase.
type RoleEntry struct {
	Card         string `yaml:"card"`
	Description  string `yaml:"description"`
	PhaseTitle   string `yaml:"phase_title"`
	Instructions string `yaml:"instructions"`
}

// RoleTable provides role metadata lookup by card name.
type RoleTable struct {
	roles map[string]*RoleEntry
}

// LoadRoleTable loads role_list.yaml.
func LoadRoleTable(path string) (*RoleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role list: %w", err)
	}
	var entries []RoleEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse role list: %w", err)
	}
	t := &RoleTable{roles: make(map[string]*RoleEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		t.roles[e.Card] = e
	}
	return t, nil
}

// Get returns the entry for the named card, or nil if none.
func (t *RoleTable) Get(card string) *RoleEntry {
	return t.roles[card]
}

// Count returns the number of roles loaded.
func (t *RoleTable) Count() int {
	return len(t.roles)
}
