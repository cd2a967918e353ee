package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TokenKey is the storage key holding the bearer token.
const TokenKey = "session_token"

var (
	// ErrStorageUnavailable is returned when neither storage backend can serve.
	ErrStorageUnavailable = errors.New("client: storage unavailable")
	// ErrStorageTimeout is returned when a storage call exceeds its bound.
	ErrStorageTimeout = errors.New("client: storage call timed out")
)

// Storage is a string key-value store. A missing key returns ok=false and a
// nil error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SecureStorage is hardware-backed storage that may be absent on some devices.
type SecureStorage interface {
	Storage
	Available(ctx context.Context) bool
}

// TokenVault stores the bearer token in secure storage when available and in
// the fallback otherwise. Every call is bounded by the vault timeout even if
// the backend ignores its context.
type TokenVault struct {
	secure   SecureStorage
	fallback Storage
	timeout  time.Duration
}

func NewTokenVault(secure SecureStorage, fallback Storage, timeout time.Duration) *TokenVault {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TokenVault{secure: secure, fallback: fallback, timeout: timeout}
}

// Load returns the stored token. Absence is ok=false, not an error.
func (v *TokenVault) Load(ctx context.Context) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	var (
		token string
		found bool
	)
	err := v.call(ctx, func(ctx context.Context, s Storage) error {
		var err error
		token, found, err = s.Get(ctx, TokenKey)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return token, found && token != "", nil
}

// Save stores token.
func (v *TokenVault) Save(ctx context.Context, token string) error {
	if v == nil {
		return ErrStorageUnavailable
	}
	return v.call(ctx, func(ctx context.Context, s Storage) error {
		return s.Set(ctx, TokenKey, token)
	})
}

// Wipe deletes the token from every reachable backend.
func (v *TokenVault) Wipe(ctx context.Context) error {
	if v == nil {
		return nil
	}
	var errs []error
	for _, s := range v.backends(ctx) {
		errs = append(errs, v.bounded(ctx, func(ctx context.Context) error {
			return s.Delete(ctx, TokenKey)
		}))
	}
	return errors.Join(errs...)
}

func (v *TokenVault) call(ctx context.Context, fn func(context.Context, Storage) error) error {
	s, err := v.pick(ctx)
	if err != nil {
		return err
	}
	return v.bounded(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (v *TokenVault) pick(ctx context.Context) (Storage, error) {
	if v.secure != nil && v.available(ctx) {
		return v.secure, nil
	}
	if v.fallback != nil {
		return v.fallback, nil
	}
	return nil, ErrStorageUnavailable
}

func (v *TokenVault) available(ctx context.Context) bool {
	var ok bool
	err := v.bounded(ctx, func(ctx context.Context) error {
		ok = v.secure.Available(ctx)
		return nil
	})
	return err == nil && ok
}

func (v *TokenVault) backends(ctx context.Context) []Storage {
	var out []Storage
	if v.secure != nil && v.available(ctx) {
		out = append(out, v.secure)
	}
	if v.fallback != nil {
		out = append(out, v.fallback)
	}
	return out
}

func (v *TokenVault) bounded(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStorageTimeout
	}
}

// MemoryStorage is a process-local Storage, used as the insecure fallback and
// in tests.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
