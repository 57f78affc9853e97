package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ins/ins/internal/platform/session"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLoginInFlight      = errors.New("sign-in already in progress")
	ErrDuplicateUser      = errors.New("duplicate username")
)

// DefaultLoginLatency is the simulated credential-check delay.
const DefaultLoginLatency = time.Second

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext
// equivalent.
func CheckPassword(password, hashedPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// User is a directory entry. Exactly one of PasswordHash or Password is used
// when the entry is added; Password is hashed on the way in.
type User struct {
	ID           string
	Username     string
	Name         string
	Role         session.Role
	PasswordHash string
	Password     string
}

// Directory is the fixed set of users allowed to sign in.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
	cost  int
	dummy string
}

// NewDirectory returns an empty directory hashing plain passwords at cost.
func NewDirectory(cost int) (*Directory, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	dummy, err := HashPassword(uuid.NewString(), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	return &Directory{users: make(map[string]User), cost: cost, dummy: dummy}, nil
}

// Add registers u. The stored entry never keeps the plain password.
func (d *Directory) Add(u User) error {
	if u.Username == "" || u.Name == "" {
		return fmt.Errorf("auth: user needs a username and a display name")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("auth: user %q: unknown role %q", u.Username, u.Role)
	}
	if u.PasswordHash == "" {
		if u.Password == "" {
			return fmt.Errorf("auth: user %q has no password", u.Username)
		}
		h, err := HashPassword(u.Password, d.cost)
		if err != nil {
			return fmt.Errorf("auth: hash password for %q: %w", u.Username, err)
		}
		u.PasswordHash = h
	}
	u.Password = ""
	if u.ID == "" {
		u.ID = u.Username
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[u.Username]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateUser, u.Username)
	}
	d.users[u.Username] = u
	return nil
}

// Len returns the number of registered users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Verify checks a username/password pair. Unknown users still pay for one
// bcrypt comparison.
func (d *Directory) Verify(username, password string) (*User, error) {
	d.mu.RLock()
	u, ok := d.users[username]
	d.mu.RUnlock()

	if !ok {
		CheckPassword(password, d.dummy)
		return nil, ErrInvalidCredentials
	}
	if !CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// Authenticator runs the simulated asynchronous credential check.
type Authenticator struct {
	dir     *Directory
	latency time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewAuthenticator(dir *Directory, latency time.Duration, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		dir:      dir,
		latency:  latency,
		logger:   logger.With().Str("component", "authenticator").Logger(),
		inFlight: make(map[string]struct{}),
	}
}

// Authenticate checks the credentials after the configured latency and
// returns the session to store on success. Only one check may be outstanding
// per slot; a second one fails with ErrLoginInFlight.
func (a *Authenticator) Authenticate(ctx context.Context, slotID, username, password string) (*session.Session, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if !a.begin(slotID) {
		return nil, ErrLoginInFlight
	}
	defer a.end(slotID)

	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	u, err := a.dir.Verify(username, password)
	if err != nil {
		a.logger.Info().Str("slot", slotID).Msg("sign-in rejected")
		return nil, err
	}
	a.logger.Info().Str("slot", slotID).Str("user_id", u.ID).Str("role", string(u.Role)).Msg("sign-in accepted")
	return &session.Session{Identity: u.ID, Name: u.Name, Role: u.Role}, nil
}

func (a *Authenticator) begin(slotID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inFlight[slotID]; busy {
		return false
	}
	a.inFlight[slotID] = struct{}{}
	return true
}

func (a *Authenticator) end(slotID string) {
	a.mu.Lock()
	delete(a.inFlight, slotID)
	a.mu.Unlock()
}
