// Package memory is an in-process principal.Store for tests, examples and
// single-node development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/principal"
)

type identityKey struct {
	provider string
	subject  string
}

// Store keeps principals in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	records    map[string]principal.Record
	identities map[identityKey]string
	now        func() time.Time
}

func New() *Store {
	return &Store{
		records:    make(map[string]principal.Record),
		identities: make(map[identityKey]string),
		now:        time.Now,
	}
}

// Put inserts or replaces rec as-is.
func (s *Store) Put(rec principal.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.records[rec.ID] = cloneRecord(rec)
	if rec.Provider != "" && rec.ExternalID != "" {
		s.identities[identityKey{rec.Provider, rec.ExternalID}] = rec.ID
	}
}

func (s *Store) LookupStamp(ctx context.Context, id string) (principal.StampRecord, error) {
	if err := ctx.Err(); err != nil {
		return principal.StampRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return principal.StampRecord{}, principal.ErrNotFound
	}
	return principal.StampRecord{Stamp: rec.SecurityStamp, Deleted: rec.Deleted()}, nil
}

func (s *Store) SetStamp(ctx context.Context, id, stamp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return principal.ErrNotFound
	}
	if rec.Deleted() {
		return principal.ErrDeleted
	}
	rec.SecurityStamp = stamp
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (principal.Record, error) {
	if err := ctx.Err(); err != nil {
		return principal.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return principal.Record{}, principal.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) FindOrCreate(ctx context.Context, identity principal.ExternalIdentity, nr principal.NewRecord) (principal.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return principal.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{identity.Provider, identity.Subject}
	if id, ok := s.identities[key]; ok {
		return cloneRecord(s.records[id]), false, nil
	}

	now := s.now().UTC()
	rec := principal.Record{
		ID:            nr.ID,
		Role:          nr.Role,
		TenantID:      principal.CloneTenant(nr.TenantID),
		SecurityStamp: nr.SecurityStamp,
		Provider:      identity.Provider,
		ExternalID:    identity.Subject,
		Username:      identity.Username,
		DisplayName:   displayName(identity),
		Language:      identity.Language,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.records[rec.ID] = rec
	s.identities[key] = rec.ID
	return cloneRecord(rec), true, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, role principal.Role, stamp string) (principal.Record, error) {
	if err := ctx.Err(); err != nil {
		return principal.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return principal.Record{}, principal.ErrNotFound
	}
	if rec.Deleted() {
		return principal.Record{}, principal.ErrDeleted
	}
	rec.Role = role
	rec.SecurityStamp = stamp
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return cloneRecord(rec), nil
}

func (s *Store) SoftDelete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return principal.ErrNotFound
	}
	if rec.Deleted() {
		return nil
	}
	now := s.now().UTC()
	rec.DeletedAt = &now
	rec.UpdatedAt = now
	s.records[id] = rec
	return nil
}

func cloneRecord(rec principal.Record) principal.Record {
	rec.TenantID = principal.CloneTenant(rec.TenantID)
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		rec.DeletedAt = &t
	}
	return rec
}

func displayName(identity principal.ExternalIdentity) string {
	switch {
	case identity.FirstName != "" && identity.LastName != "":
		return identity.FirstName + " " + identity.LastName
	case identity.FirstName != "":
		return identity.FirstName
	default:
		return identity.LastName
	}
}

var _ principal.Store = (*Store)(nil)
