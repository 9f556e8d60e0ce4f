package sshd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func genKeyPair(t *testing.T) (ssh.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return sshPub, priv
}

func writeUserDB(t *testing.T, dir string, db map[string][]string) string {
	t.Helper()
	data, err := json.Marshal(db)
	require.NoError(t, err)
	path := filepath.Join(dir, userDBFile)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestKeyDirsOrder(t *testing.T) {
	dirs := KeyDirs("/tmp/override")
	require.NotEmpty(t, dirs)
	assert.Equal(t, "/tmp/override", dirs[0])
	assert.Equal(t, "/etc/onwgo/ssh_keys", dirs[len(dirs)-1])

	noOverride := KeyDirs("")
	assert.Len(t, noOverride, len(dirs)-1)
}

func TestLoadHostKey(t *testing.T) {
	_, priv := genKeyPair(t)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, hostKeyFile)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	signer, err := LoadHostKey([]string{t.TempDir(), dir})
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", signer.PublicKey().Type())
}

func TestLoadHostKeyMissing(t *testing.T) {
	_, err := LoadHostKey([]string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), hostKeyFile)
}

func TestLoadHostKeyGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hostKeyFile), []byte("not a key"), 0o600))
	_, err := LoadHostKey([]string{dir})
	assert.Error(t, err)
}

func TestLoadUserKeysAndMatch(t *testing.T) {
	alicePub, _ := genKeyPair(t)
	bobPub, _ := genKeyPair(t)
	strangerPub, _ := genKeyPair(t)

	path := writeUserDB(t, t.TempDir(), map[string][]string{
		"alice": {strings.TrimSpace(string(ssh.MarshalAuthorizedKey(alicePub)))},
		"bob":   {strings.TrimSpace(string(ssh.MarshalAuthorizedKey(bobPub)))},
	})

	db, err := LoadUserKeys(path)
	require.NoError(t, err)

	assert.True(t, db.Match("alice", alicePub))
	assert.True(t, db.Match("bob", bobPub))
	assert.False(t, db.Match("alice", bobPub), "keys must not cross users")
	assert.False(t, db.Match("alice", strangerPub))
	assert.False(t, db.Match("carol", alicePub))
}

func TestLoadUserKeysBadLine(t *testing.T) {
	path := writeUserDB(t, t.TempDir(), map[string][]string{
		"alice": {"ssh-ed25519 this-is-not-base64"},
	})
	_, err := LoadUserKeys(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice")
}

func TestFindUserKeys(t *testing.T) {
	pub, _ := genKeyPair(t)
	dir := t.TempDir()
	explicit := writeUserDB(t, dir, map[string][]string{
		"alice": {strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))},
	})

	// Explicit path wins over the search dirs.
	db, err := FindUserKeys(explicit, []string{t.TempDir()})
	require.NoError(t, err)
	assert.True(t, db.Match("alice", pub))

	// Without an override the first dir holding a db is used.
	db, err = FindUserKeys("", []string{t.TempDir(), dir})
	require.NoError(t, err)
	assert.True(t, db.Match("alice", pub))

	_, err = FindUserKeys("", []string{t.TempDir()})
	assert.Error(t, err)
}

func TestParsePtyReq(t *testing.T) {
	// "xterm" + 120 cols + 40 rows + pixel dims.
	payload := []byte{0, 0, 0, 5}
	payload = append(payload, []byte("xterm")...)
	payload = append(payload,
		0, 0, 0, 120,
		0, 0, 0, 40,
		0, 0, 0, 0,
		0, 0, 0, 0)
	w, h, ok := parsePtyReq(payload)
	require.True(t, ok)
	assert.Equal(t, 120, w)
	assert.Equal(t, 40, h)

	_, _, ok = parsePtyReq([]byte{0, 0})
	assert.False(t, ok)
	_, _, ok = parsePtyReq([]byte{0, 0, 0, 50, 'x'})
	assert.False(t, ok)

	// A term length near MaxUint32 must not wrap the bounds check around.
	huge := []byte{0xff, 0xff, 0xff, 0xf8}
	huge = append(huge, make([]byte, 16)...)
	_, _, ok = parsePtyReq(huge)
	assert.False(t, ok)
}

func TestParseWindowChange(t *testing.T) {
	w, h, ok := parseWindowChange([]byte{0, 0, 0, 100, 0, 0, 0, 30, 0, 0, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 100, w)
	assert.Equal(t, 30, h)

	_, _, ok = parseWindowChange([]byte{1, 2, 3})
	assert.False(t, ok)
}
