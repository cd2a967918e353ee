package stamp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/principal"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	stampSize    = 32
	epochStripes = 256
)

// ErrUnavailable wraps source failures and lookup timeouts.
var ErrUnavailable = errors.New("stamp source unavailable")

// Config tunes the cache and the source call budget.
type Config struct {
	CacheTTL      time.Duration
	CacheSize     int64
	LookupTimeout time.Duration
	// Observe, when set, is called after every Lookup with whether it was served from cache.
	Observe func(hit bool)
}

// Store reads and rotates security stamps.
type Store struct {
	source  principal.StampSource
	cache   *ristretto.Cache[string, principal.StampRecord]
	ttl     time.Duration
	timeout time.Duration
	observe func(bool)

	// fillMu orders cache fills against invalidations. epochs counts
	// invalidations per id stripe; a fill whose stripe moved since its source
	// read is dropped.
	fillMu sync.Mutex
	epochs [epochStripes]uint64
	seed   maphash.Seed
}

// New builds a Store over source. A zero CacheTTL disables caching.
func New(source principal.StampSource, cfg Config) (*Store, error) {
	if source == nil {
		return nil, errors.New("stamp source required")
	}
	if cfg.CacheTTL < 0 || cfg.LookupTimeout < 0 {
		return nil, errors.New("invalid stamp store configuration")
	}

	s := &Store{
		source:  source,
		ttl:     cfg.CacheTTL,
		timeout: cfg.LookupTimeout,
		observe: cfg.Observe,
		seed:    maphash.MakeSeed(),
	}
	if cfg.CacheTTL == 0 {
		return s, nil
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, principal.StampRecord]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("stamp cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Generate returns a new random opaque stamp.
func Generate() (string, error) {
	var raw [stampSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Lookup returns the current stamp and soft-delete flag for id.
func (s *Store) Lookup(ctx context.Context, id string) (principal.StampRecord, error) {
	if id == "" {
		return principal.StampRecord{}, principal.ErrNotFound
	}
	if s.cache != nil {
		if rec, ok := s.cache.Get(id); ok {
			s.observed(true)
			return rec, nil
		}
	}
	s.observed(false)
	epoch := s.epoch(id)

	callCtx, cancel := s.bound(ctx)
	defer cancel()

	rec, err := s.source.LookupStamp(callCtx, id)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return principal.StampRecord{}, principal.ErrNotFound
		}
		return principal.StampRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.fill(id, rec, epoch)
	return rec, nil
}

// CurrentStamp returns the stamp of a live principal, or principal.ErrNotFound
// when it is missing or soft-deleted.
func (s *Store) CurrentStamp(ctx context.Context, id string) (string, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Deleted {
		return "", principal.ErrNotFound
	}
	return rec.Stamp, nil
}

// Rotate persists a fresh stamp for id and returns it.
func (s *Store) Rotate(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", principal.ErrNotFound
	}
	next, err := Generate()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	callCtx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.source.SetStamp(callCtx, id, next); err != nil {
		if errors.Is(err, principal.ErrNotFound) || errors.Is(err, principal.ErrDeleted) {
			s.Invalidate(id)
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.Invalidate(id)
	return next, nil
}

// Invalidate drops the local cache entry for id. Writes that change a stamp or
// the soft-delete flag outside Rotate must call it.
func (s *Store) Invalidate(id string) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.epochs[s.stripe(id)]++
	s.cache.Del(id)
	s.cache.Wait()
}

func (s *Store) stripe(id string) uint64 {
	return maphash.String(s.seed, id) % epochStripes
}

func (s *Store) epoch(id string) uint64 {
	if s.cache == nil {
		return 0
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.epochs[s.stripe(id)]
}

// fill caches rec unless id was invalidated after epoch was read. A lookup
// that read the source before a rotation must not put the old stamp back.
func (s *Store) fill(id string, rec principal.StampRecord, epoch uint64) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.epochs[s.stripe(id)] != epoch {
		return
	}
	s.cache.SetWithTTL(id, rec, 1, s.ttl)
}

// Close releases cache resources.
func (s *Store) Close() {
	if s == nil || s.cache == nil {
		return
	}
	s.cache.Close()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) observed(hit bool) {
	if s.observe != nil {
		s.observe(hit)
	}
}
