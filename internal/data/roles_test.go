package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoles = `
- card: Werewolf
  description: "Wake at night."
  phase_title: "Werewolf Phase"
  instructions: "Open your eyes."
- card: Villager
  description: "No night power."
`

func TestLoadRoleTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role_list.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoles), 0o644))

	table, err := LoadRoleTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Count())

	ww := table.Get("Werewolf")
	require.NotNil(t, ww)
	assert.Equal(t, "Werewolf Phase", ww.PhaseTitle)
	assert.Equal(t, "Open your eyes.", ww.Instructions)

	assert.Nil(t, table.Get("Seer"))
}

func TestLoadRoleTableMissingFile(t *testing.T) {
	_, err := LoadRoleTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
