package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "sessions/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, "sessions/abc", `{"id":"1"}`, PutOptions{}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	r, err := s.Get(ctx, "sessions/abc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"id":"1"}` {
		t.Fatalf("unexpected value %q", data)
	}

	ok, err := s.Exists(ctx, "sessions/abc")
	if err != nil || !ok {
		t.Fatalf("expected key to exist, ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "sessions/abc", "other", PutOptions{Condition: PutIfNoneMatch}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := s.Delete(ctx, "sessions/abc"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "sessions/abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting a missing key is not an error
	if err := s.Delete(ctx, "sessions/abc"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	roundTrip(t, NewInMemoryStore())
}

func TestFileStoreRoundTrip(t *testing.T) {
	roundTrip(t, NewFileStore(t.TempDir()))
}

func TestListReturnsSortedKeysUnderPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]Store{
		"memory": NewInMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"keys/2", "keys/1", "state/override"} {
				if err := s.Put(ctx, key, "{}", PutOptions{}); err != nil {
					t.Fatalf("put %s failed: %v", key, err)
				}
			}
			keys, err := s.List(ctx, "keys/")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(keys) != 2 || keys[0] != "1" || keys[1] != "2" {
				t.Fatalf("unexpected keys %v", keys)
			}
		})
	}
}

func TestFileStoreConfinesKeysToDir(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	dir := filepath.Join(parent, "data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	s := NewFileStore(dir)

	for _, key := range []string{
		"keys/../../evil.json",
		"../evil.json",
		"..",
	} {
		if err := s.Put(ctx, key, "{}", PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Get(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if _, err := s.Exists(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Exists(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if err := s.Delete(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Delete(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}

	if _, err := os.Stat(filepath.Join(parent, "evil.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no file outside the store dir, stat err %v", err)
	}

	// keys with internal, non-escaping .. segments still resolve inside Dir
	if err := s.Put(ctx, "keys/sub/../abc.json", "{}", PutOptions{}); err != nil {
		t.Fatalf("non-escaping key rejected: %v", err)
	}
	if _, err := s.Get(ctx, "keys/abc.json"); err != nil {
		t.Fatalf("expected cleaned key readable: %v", err)
	}
}
