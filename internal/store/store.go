package store

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound      = errors.New("store: key not found")
	ErrAlreadyExists = errors.New("store: key already exists")
	// ErrInvalidKey means the key would resolve outside the backend's root.
	ErrInvalidKey = errors.New("store: key escapes the store directory")
)

type PutCondition int

const (
	PutAlways PutCondition = iota
	// PutIfNoneMatch fails with ErrAlreadyExists when the key is present.
	PutIfNoneMatch
)

type PutOptions struct {
	Condition PutCondition
}

// Store is the persistence layer for everything the verifier keeps: sessions,
// issued keys, and override state. Backends are small JSON documents keyed by
// slash-separated paths.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, value string, opts PutOptions) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
