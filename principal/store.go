package principal

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by stores when no principal matches.
	ErrNotFound = errors.New("principal not found")
	// ErrDeleted is returned by mutating store calls on a soft-deleted principal.
	ErrDeleted = errors.New("principal deleted")
)

// StampSource is the minimal read/write surface the revocation store needs.
type StampSource interface {
	// LookupStamp reads the current stamp and soft-delete flag only.
	LookupStamp(ctx context.Context, id string) (StampRecord, error)
	// SetStamp persists a new stamp for a live principal.
	SetStamp(ctx context.Context, id, stamp string) error
}

// Store is the source of truth for principals.
//
// Implementations must return ErrNotFound for unknown ids and must never mutate a
// stamp outside SetStamp and UpdateRole.
type Store interface {
	StampSource

	// Get reads the full record, including soft-deleted ones.
	Get(ctx context.Context, id string) (Record, error)
	// FindOrCreate returns the principal bound to identity, creating it from rec
	// when absent. created reports whether a new row was written.
	FindOrCreate(ctx context.Context, identity ExternalIdentity, rec NewRecord) (out Record, created bool, err error)
	// UpdateRole sets role and stamp together.
	UpdateRole(ctx context.Context, id string, role Role, stamp string) (Record, error)
	// SoftDelete marks the principal deleted. Deleting twice is not an error.
	SoftDelete(ctx context.Context, id string) error
}
