// Package sshd is the SSH transport: public-key logins, a PTY session
// channel per connection, and decoded keystrokes posted to the core loop.
package sshd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const (
	hostKeyFile = "ssh_host_rsa_key"
	userDBFile  = "user_keys.json"
)

// KeyDirs returns the host key directory candidates, most specific first.
func KeyDirs(override string) []string {
	var dirs []string
	if override != "" {
		dirs = append(dirs, override)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".onwgo", "ssh_keys"))
	}
	dirs = append(dirs, "/etc/onwgo/ssh_keys")
	return dirs
}

// LoadHostKey reads and parses the host private key from the first candidate
// directory that has one.
func LoadHostKey(dirs []string) (ssh.Signer, error) {
	var lastErr error
	for _, dir := range dirs {
		path := filepath.Join(dir, hostKeyFile)
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse host key %s: %w", path, err)
		}
		return signer, nil
	}
	return nil, fmt.Errorf("no host key %s in %v: %w", hostKeyFile, dirs, lastErr)
}

// UserKeyDB maps user ids to the wire encodings of their authorized keys.
type UserKeyDB map[string]map[string]bool

// LoadUserKeys reads the user key database: a JSON object mapping each user
// id to a list of authorized_keys lines.
func LoadUserKeys(path string) (UserKeyDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user key db %s: %w", path, err)
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse user key db %s: %w", path, err)
	}
	db := make(UserKeyDB, len(raw))
	for user, lines := range raw {
		keys := make(map[string]bool, len(lines))
		for _, line := range lines {
			pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
			if err != nil {
				return nil, fmt.Errorf("parse key for user %s: %w", user, err)
			}
			keys[string(pub.Marshal())] = true
		}
		db[user] = keys
	}
	return db, nil
}

// FindUserKeys locates user_keys.json: an explicit path wins, otherwise the
// first candidate directory that has one.
func FindUserKeys(override string, dirs []string) (UserKeyDB, error) {
	if override != "" {
		return LoadUserKeys(override)
	}
	var lastErr error
	for _, dir := range dirs {
		db, err := LoadUserKeys(filepath.Join(dir, userDBFile))
		if err == nil {
			return db, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no user key db found: %w", lastErr)
}

// Match reports whether key is authorized for user.
func (db UserKeyDB) Match(user string, key ssh.PublicKey) bool {
	return db[user][string(key.Marshal())]
}
