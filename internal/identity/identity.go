// Package identity manages the anonymous participant record: a uuid plus a
// display name, persisted to disk for the session's lifetime, with a
// monotonic counter backing the default anonymous names.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/takiindev/chat-private/internal/models"
)

const (
	userFile    = "user.json"
	counterFile = "counter"
)

// ErrEmptyName rejects a rename to an empty name.
var ErrEmptyName = errors.New("name is empty")

// Manager owns the on-disk participant record.
type Manager struct {
	dir     string
	maxName int
	user    models.User
}

// Load restores the participant from dir, or creates a fresh anonymous one.
// A newly minted participant is persisted before Load returns.
func Load(dir string, maxName int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	m := &Manager{dir: dir, maxName: maxName}

	data, err := os.ReadFile(filepath.Join(dir, userFile))
	if err == nil {
		if jsonErr := json.Unmarshal(data, &m.user); jsonErr == nil && m.user.ID != "" {
			return m, nil
		}
	}

	n, err := m.nextAnonymous()
	if err != nil {
		return nil, err
	}
	m.user = models.User{
		ID:   uuid.NewString(),
		Name: fmt.Sprintf("Anonymous %d", n),
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// User returns the current participant record.
func (m *Manager) User() *models.User {
	return &m.user
}

// Rename updates the display name, bounded to the configured length, and
// persists the record.
func (m *Manager) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if m.maxName > 0 && len(name) > m.maxName {
		name = name[:m.maxName]
	}
	m.user.Name = name
	return m.save()
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(&m.user, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, userFile), data, 0600)
}

// nextAnonymous increments the anonymous-name counter and persists it
// immediately so the sequence stays monotonic across sessions.
func (m *Manager) nextAnonymous() (int, error) {
	path := filepath.Join(m.dir, counterFile)

	n := 0
	if data, err := os.ReadFile(path); err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil {
			n = parsed
		}
	}
	n++

	if err := os.WriteFile(path, []byte(strconv.Itoa(n)), 0600); err != nil {
		return 0, err
	}
	return n, nil
}
