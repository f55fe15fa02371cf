package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// sessionData is the on-disk shape of the saved session.
type sessionData struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

// Manager owns the persisted session: the saved email, the optional
// password (only when "remember me" was requested) and the session token.
//
// Every operation degrades on internal faults instead of propagating
// them: a broken session file means "no session", not a crashed caller.
type Manager struct {
	path   string
	svc    Service
	logger *log.Logger

	mu   sync.Mutex
	data sessionData
}

// NewManager loads the saved session from path (if any) and returns a
// manager bound to the given auth service.
//
// If logger is nil, a default logger writing to stderr is used.
func NewManager(path string, svc Service, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}

	m := &Manager{path: path, svc: svc, logger: logger}
	m.load()
	return m
}

// Save persists the session after a successful login. Email and token are
// stored unconditionally; the password is stored only when remember is
// set, and any previously stored password is cleared otherwise.
func (m *Manager) Save(email, password, token string, remember bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Email = email
	m.data.Token = token
	m.data.Remember = remember
	if remember {
		m.data.Password = password
	} else {
		m.data.Password = ""
	}

	if err := m.persistLocked(); err != nil {
		m.logger.Printf("Failed to save session: %v", err)
		return
	}
	m.logger.Printf("Saved session for %s", email)
}

// RestoreFromToken tries to materialize an identity from the stored
// session token. Returns true only if an identity now exists.
//
// A rejected token is never retried verbatim: on failure the stored token
// is cleared, leaving any saved credentials in place so AutoLogin can
// still fall through to them.
func (m *Manager) RestoreFromToken(ctx context.Context) bool {
	m.mu.Lock()
	token := m.data.Token
	m.mu.Unlock()

	if token == "" {
		return false
	}

	if _, err := m.svc.Become(ctx, token); err != nil {
		m.logger.Printf("Session restore failed: %v", err)
		m.clearToken()
		return false
	}

	m.logger.Printf("Session restored from token")
	return m.svc.Current() != nil
}

// AutoLogin attempts a credential login with the saved email and password.
//
// The tri-state result distinguishes the outcomes exactly:
//   - already authenticated        -> (true, nil)
//   - saved credentials accepted   -> (true, nil), token refreshed via Save
//   - saved credentials rejected   -> (false, the cause)
//   - nothing stored to try        -> (false, nil)
func (m *Manager) AutoLogin(ctx context.Context) (bool, error) {
	if m.svc.Current() != nil {
		return true, nil
	}

	m.mu.Lock()
	email, password := m.data.Email, m.data.Password
	m.mu.Unlock()

	if email == "" || password == "" {
		return false, nil
	}

	m.logger.Printf("Attempting auto-login for %s", email)
	ident, err := m.svc.Login(ctx, email, password)
	if err != nil {
		m.logger.Printf("Auto-login failed: %v", err)
		return false, err
	}

	m.Save(email, password, ident.SessionToken, true)
	return true, nil
}

// ClearSession removes the password, token and remember flag but keeps
// the saved email so a future login form can be pre-filled.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Password = ""
	m.data.Token = ""
	m.data.Remember = false

	if err := m.persistLocked(); err != nil {
		m.logger.Printf("Failed to clear session: %v", err)
		return
	}
	m.logger.Printf("Session cleared (saved email retained)")
}

// SavedEmail returns the stored email, or "" if none.
func (m *Manager) SavedEmail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Email
}

// HasToken reports whether a session token is stored.
func (m *Manager) HasToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Token != ""
}

func (m *Manager) clearToken() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Token = ""
	if err := m.persistLocked(); err != nil {
		m.logger.Printf("Failed to persist token invalidation: %v", err)
	}
}

// load reads the session file. Missing or corrupt files degrade to an
// empty session.
func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Printf("Failed to read session file: %v", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := json.Unmarshal(data, &m.data); err != nil {
		m.logger.Printf("Corrupt session file, starting fresh: %v", err)
		m.data = sessionData{}
	}
}

// persistLocked writes the session file. Caller holds m.mu.
func (m *Manager) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0600)
}
