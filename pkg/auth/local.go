package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	UsersFile   = "users.json"
	SessionFile = "session.json"
)

type localUser struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// LocalProvider keeps email/password accounts with bcrypt hashes in a JSON
// file and remembers the signed-in identity across runs.
type LocalProvider struct {
	dir   string
	mu    sync.Mutex
	users map[string]localUser
	*broadcaster
}

// NewLocalProvider loads the accounts stored under dir.
func NewLocalProvider(dir string) (*LocalProvider, error) {
	p := &LocalProvider{dir: dir, users: make(map[string]localUser), broadcaster: newBroadcaster()}
	f, err := os.Open(filepath.Join(dir, UsersFile))
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&p.users); err != nil {
		return nil, fmt.Errorf("failed to decode users file: %w", err)
	}
	if p.users == nil {
		p.users = make(map[string]localUser)
	}
	return p, nil
}

func (p *LocalProvider) Session(ctx context.Context) (*Identity, error) {
	f, err := os.Open(filepath.Join(p.dir, SessionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var id Identity
	if err := json.NewDecoder(f).Decode(&id); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &id, nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.users[email]; exists {
		return ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("could not hash password: %w", err)
	}
	p.users[email] = localUser{ID: uuid.NewString(), Hash: string(hash)}
	return p.saveUsers()
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	p.mu.Lock()
	user, ok := p.users[email]
	p.mu.Unlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	id := &Identity{ID: user.ID, Email: email}
	if err := writeJSON(filepath.Join(p.dir, SessionFile), id); err != nil {
		return err
	}
	p.emit(id)
	return nil
}

func (p *LocalProvider) SignOut(ctx context.Context) error {
	err := os.Remove(filepath.Join(p.dir, SessionFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	p.emit(nil)
	return nil
}

// saveUsers must be called with p.mu held.
func (p *LocalProvider) saveUsers() error {
	return writeJSON(filepath.Join(p.dir, UsersFile), p.users)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(v)
}
