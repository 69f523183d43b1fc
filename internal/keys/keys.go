package keys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"

	"verifier/internal/store"
)

const (
	keyPrefix = "keys/"
	// Issued keys stop validating a day after issue.
	Lifetime = 24 * time.Hour

	randomBytes = 24
)

var (
	ErrNoKey           = errors.New("keys: no key issued for this user")
	ErrActiveKeyExists = errors.New("keys: an active key already exists")
	ErrKeyUsed         = errors.New("keys: key already used")
	ErrKeyExpired      = errors.New("keys: key expired")
	ErrKeyRevoked      = errors.New("keys: key revoked")
	ErrKeyMismatch     = errors.New("keys: incorrect key")
	ErrMalformedKey    = errors.New("keys: malformed key")
)

type AuditEvent struct {
	TS    int64  `json:"ts"`
	Event string `json:"event"`
}

// Key is a one-time access key bound to a Discord ID. One key per user at a
// time; a fresh one can only be issued once the previous is used, expired, or
// revoked.
type Key struct {
	Value     string       `json:"key"`
	DiscordID string       `json:"discord_id"`
	Used      bool         `json:"used"`
	Revoked   bool         `json:"revoked"`
	CreatedAt int64        `json:"created_at"`
	UsedAt    *int64       `json:"used_at"`
	ExpiresAt int64        `json:"expires_at"`
	Audit     []AuditEvent `json:"audit"`
}

func (k *Key) Expired(now time.Time) bool {
	return now.Unix() > k.ExpiresAt
}

// Active reports whether the key still gates a new issue.
func (k *Key) Active(now time.Time) bool {
	return !k.Used && !k.Revoked && !k.Expired(now)
}

// WellFormed checks the claimed value against the issue format for the ID
// before any store or Discord lookup happens.
func WellFormed(did, value string) bool {
	return value != "" && strings.HasPrefix(value, "GMD-"+did+"-")
}

// Storage persists one key record per Discord ID.
type Storage struct {
	store store.Store
	now   func() time.Time
}

func NewStorage(s store.Store) *Storage {
	return &Storage{store: s, now: time.Now}
}

func newValue(did string) string {
	b := make([]byte, randomBytes)
	lo.Must(io.ReadFull(rand.Reader, b))
	return fmt.Sprintf("GMD-%s-%s", did, strings.ToUpper(hex.EncodeToString(b)))
}

// Issue creates a fresh key for the user. Fails with ErrActiveKeyExists while
// an unused, unexpired, unrevoked key is outstanding.
func (s *Storage) Issue(ctx context.Context, did string) (*Key, error) {
	now := s.now()
	existing, err := s.Get(ctx, did)
	if err != nil && !errors.Is(err, ErrNoKey) {
		return nil, err
	}
	if existing != nil && existing.Active(now) {
		return nil, ErrActiveKeyExists
	}

	key := &Key{
		Value:     newValue(did),
		DiscordID: did,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(Lifetime).Unix(),
		Audit:     []AuditEvent{{TS: now.Unix(), Event: "issued"}},
	}
	if err := s.save(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Storage) Get(ctx context.Context, did string) (*Key, error) {
	r, err := s.store.Get(ctx, keyPrefix+did+".json")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoKey
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	defer r.Close()

	var key Key
	if err := json.NewDecoder(r).Decode(&key); err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return &key, nil
}

// Consume validates the claimed value and marks the key used. Expired keys are
// revoked on sight.
func (s *Storage) Consume(ctx context.Context, did, value string) error {
	if !WellFormed(did, value) {
		return ErrMalformedKey
	}
	key, err := s.Get(ctx, did)
	if err != nil {
		return err
	}

	now := s.now()
	switch {
	case key.Revoked:
		return ErrKeyRevoked
	case key.Used:
		return ErrKeyUsed
	case key.Expired(now):
		key.Revoked = true
		key.Audit = append(key.Audit, AuditEvent{TS: now.Unix(), Event: "expired"})
		if err := s.save(ctx, key); err != nil {
			return err
		}
		return ErrKeyExpired
	case key.Value != value:
		return ErrKeyMismatch
	}

	ts := now.Unix()
	key.Used = true
	key.UsedAt = &ts
	key.Audit = append(key.Audit, AuditEvent{TS: ts, Event: "consumed"})
	return s.save(ctx, key)
}

// Burn revokes the user's key regardless of state.
func (s *Storage) Burn(ctx context.Context, did string) error {
	key, err := s.Get(ctx, did)
	if err != nil {
		return err
	}
	key.Revoked = true
	key.Audit = append(key.Audit, AuditEvent{TS: s.now().Unix(), Event: "revoked"})
	return s.save(ctx, key)
}

// List returns every stored key record.
func (s *Storage) List(ctx context.Context) ([]Key, error) {
	ids, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	records := make([]Key, 0, len(ids))
	for _, id := range ids {
		did := strings.TrimSuffix(id, ".json")
		key, err := s.Get(ctx, did)
		if err != nil {
			if errors.Is(err, ErrNoKey) {
				continue
			}
			return nil, err
		}
		records = append(records, *key)
	}
	return records, nil
}

func (s *Storage) save(ctx context.Context, key *Key) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := s.store.Put(ctx, keyPrefix+key.DiscordID+".json", string(data), store.PutOptions{}); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}
