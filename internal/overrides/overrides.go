package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"verifier/internal/store"
)

const stateKey = "state/overrides.json"

// AuditEntry records one override mutation.
type AuditEntry struct {
	TS        int64  `json:"ts"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	DiscordID string `json:"discord_id,omitempty"`
}

type state struct {
	GlobalOverride bool            `json:"global_override"`
	AdminOverrides map[string]bool `json:"admin_overrides"`
	Audit          []AuditEntry    `json:"audit"`
}

// Service holds the override switches that short-circuit role checks: one
// global flag and a per-user set. State survives restarts through the store.
type Service struct {
	store store.Store

	mu sync.RWMutex
	st state
}

func NewService(ctx context.Context, s store.Store) (*Service, error) {
	svc := &Service{
		store: s,
		st:    state{AdminOverrides: make(map[string]bool)},
	}
	if err := svc.load(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) load(ctx context.Context) error {
	r, err := s.store.Get(ctx, stateKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load override state: %w", err)
	}
	defer r.Close()

	var st state
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode override state: %w", err)
	}
	if st.AdminOverrides == nil {
		st.AdminOverrides = make(map[string]bool)
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	return nil
}

func (s *Service) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.st)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal override state", "error", err)
		return
	}
	if err := s.store.Put(ctx, stateKey, string(data), store.PutOptions{}); err != nil {
		slog.ErrorContext(ctx, "failed to persist override state", "error", err)
	}
}

func (s *Service) Global() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GlobalOverride
}

func (s *Service) ForUser(did string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.AdminOverrides[did]
}

// Granted reports whether any override applies to the user.
func (s *Service) Granted(did string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GlobalOverride || s.st.AdminOverrides[did]
}

func (s *Service) SetGlobal(ctx context.Context, on bool, actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.GlobalOverride = on
	action := "global_override_cleared"
	if on {
		action = "global_override_set"
	}
	s.st.Audit = append(s.st.Audit, AuditEntry{TS: time.Now().Unix(), Actor: actor, Action: action})
	s.persistLocked(ctx)
}

func (s *Service) SetUser(ctx context.Context, did string, on bool, actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action := "user_override_cleared"
	if on {
		s.st.AdminOverrides[did] = true
		action = "user_override_set"
	} else {
		delete(s.st.AdminOverrides, did)
	}
	s.st.Audit = append(s.st.Audit, AuditEntry{TS: time.Now().Unix(), Actor: actor, Action: action, DiscordID: did})
	s.persistLocked(ctx)
}

func (s *Service) AuditLog() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.st.Audit))
	copy(out, s.st.Audit)
	return out
}
