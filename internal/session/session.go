package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"verifier/internal/store"
)

const (
	sessionPrefix = "sessions/"
	idLength      = 32
	// Lifetime matches the portal's one-day login window.
	Lifetime = 24 * time.Hour
)

var ErrNotFound = errors.New("session not found or expired")

// User is the verified Discord identity carried by a session.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	TS            int64  `json:"ts"`
}

type Session struct {
	ID         string    `json:"id"`
	User       *User     `json:"user,omitempty"`
	OAuthState string    `json:"oauth_state,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Storage keeps sessions as JSON records in the store, one per session ID.
type Storage struct {
	store store.Store
}

func NewStorage(s store.Store) *Storage {
	return &Storage{store: s}
}

func (s *Storage) Create(ctx context.Context) (*Session, error) {
	idBytes := make([]byte, idLength)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:        base64.URLEncoding.EncodeToString(idBytes),
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// validID restricts lookups to the base64url alphabet Create produces. The ID
// arrives raw from the cookie, so anything else never reaches the store.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return false
		}
	}
	return true
}

func (s *Storage) Get(ctx context.Context, id string) (*Session, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	r, err := s.store.Get(ctx, sessionPrefix+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	defer r.Close()

	var sess Session
	if err := json.NewDecoder(r).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.store.Delete(ctx, sessionPrefix+id)
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *Storage) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.store.Put(ctx, sessionPrefix+sess.ID, string(data), store.PutOptions{}); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	return s.store.Delete(ctx, sessionPrefix+id)
}
