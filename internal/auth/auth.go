// Package auth signs operators in against the relational store in remote
// mode. Sessions are kept in the workstation kv store and signed with the
// remote API key.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
)

// SessionTTL is how long a sign-in stays valid.
const SessionTTL = 7 * 24 * time.Hour

// MinPasswordLength is enforced at sign-up.
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("Identifiants invalides")
	ErrNoSession          = errors.New("no session")
	ErrUserExists         = errors.New("Un compte existe déjà pour cet email")
	ErrInvalidEmail       = errors.New("Email invalide")
	ErrWeakPassword       = fmt.Errorf("Le mot de passe doit contenir au moins %d caractères", MinPasswordLength)
)

// Session is a signed-in operator.
type Session struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Signature string    `json:"sig"`
}

// Provider is the identity interface used by the dashboard.
type Provider interface {
	Session(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// Users is the part of the relational store auth needs.
type Users interface {
	CreateUser(ctx context.Context, email, passwordHash string, now time.Time) error
	PasswordHash(ctx context.Context, email string) (string, error)
}

// SQLProvider authenticates against the users table.
type SQLProvider struct {
	users Users
	kv    kv.Store
	key   []byte
	cost  int
	now   func() time.Time
}

// NewSQLProvider creates a provider. apiKey signs the persisted sessions.
func NewSQLProvider(users Users, store kv.Store, apiKey string) *SQLProvider {
	return &SQLProvider{
		users: users,
		kv:    store,
		key:   []byte(apiKey),
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a new operator. It does not sign them in.
func (p *SQLProvider) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.users.CreateUser(ctx, email, string(hash), p.now()); err != nil {
		if errors.Is(err, db.ErrUserExists) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// SignIn checks the credentials and persists a signed session.
func (p *SQLProvider) SignIn(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	hash, err := p.users.PasswordHash(ctx, email)
	if err != nil {
		return err
	}
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	sess := Session{Email: email, ExpiresAt: p.now().Add(SessionTTL).UTC()}
	sess.Signature = p.sign(sess)
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return p.kv.Set(ctx, kv.KeySession, string(b))
}

// Session returns the persisted session, or ErrNoSession when there is none
// or it is expired or tampered with.
func (p *SQLProvider) Session(ctx context.Context) (*Session, error) {
	raw, ok, err := p.kv.Get(ctx, kv.KeySession)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, ErrNoSession
	}
	if !hmac.Equal([]byte(sess.Signature), []byte(p.sign(sess))) {
		return nil, ErrNoSession
	}
	if !p.now().Before(sess.ExpiresAt) {
		return nil, ErrNoSession
	}
	return &sess, nil
}

// SignOut forgets the persisted session.
func (p *SQLProvider) SignOut(ctx context.Context) error {
	return p.kv.Delete(ctx, kv.KeySession)
}

func (p *SQLProvider) sign(s Session) string {
	mac := hmac.New(sha256.New, p.key)
	fmt.Fprintf(mac, "%s|%d", s.Email, s.ExpiresAt.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}
