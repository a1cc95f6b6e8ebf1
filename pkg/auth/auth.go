// Package auth implements password login and bearer session tokens for the
// admin API.
package auth

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"embed-resolver-go/pkg/logging"
)

const sessionTTL = 24 * time.Hour

// Manager validates the admin password and tracks issued sessions. An empty
// password disables authentication entirely, matching deployments that sit
// behind their own access control.
type Manager struct {
	password string
	log      *logging.Logger

	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func New(password string, log *logging.Logger) *Manager {
	m := &Manager{
		password: password,
		log:      log.WithComponent("auth"),
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
	if password == "" {
		m.log.Warn("admin password not set, admin API is unauthenticated")
	}
	return m
}

// Enabled reports whether authentication is enforced.
func (m *Manager) Enabled() bool { return m.password != "" }

// Login checks the password and issues a session token valid for 24 hours.
func (m *Manager) Login(password string) (string, bool) {
	if !m.Enabled() {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) != 1 {
		m.log.Warn("failed admin login attempt")
		return "", false
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.prune()
	m.sessions[token] = m.now().Add(sessionTTL)
	m.mu.Unlock()

	m.log.Info("admin session issued")
	return token, true
}

// Validate checks a session token and slides its expiry forward on success.
// Always true when authentication is disabled.
func (m *Manager) Validate(token string) bool {
	if !m.Enabled() {
		return true
	}
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.sessions[token]
	if !ok {
		return false
	}
	if !m.now().Before(expiry) {
		delete(m.sessions, token)
		return false
	}
	m.sessions[token] = m.now().Add(sessionTTL)
	return true
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// prune drops expired sessions. Caller holds the lock.
func (m *Manager) prune() {
	now := m.now()
	for token, expiry := range m.sessions {
		if !now.Before(expiry) {
			delete(m.sessions, token)
		}
	}
}
