package client

import (
	"fmt"

	goSession "github.com/MrEthical07/goSession"
)

// Channel is how an authenticated client presents its credential.
type Channel int

const (
	// ChannelCookie relies on the ambient session cookie.
	ChannelCookie Channel = iota + 1
	// ChannelBearer sends the stored token as an Authorization header.
	ChannelBearer
)

func (c Channel) String() string {
	switch c {
	case ChannelCookie:
		return "cookie"
	case ChannelBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Principal is the identity returned by the profile and handshake endpoints.
type Principal struct {
	ID          string  `json:"id"`
	Role        string  `json:"role"`
	TenantID    *string `json:"tenantId"`
	Username    string  `json:"username,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	Language    string  `json:"language,omitempty"`
}

// State is the closed set of resolver states. Consumers switch on the
// concrete type:
//
//	switch s := r.State().(type) {
//	case client.Authenticated:
//	case client.Unauthenticated:
//	case client.Pending:
//	case client.Failed:
//	case client.Unresolved:
//	}
type State interface {
	state()
	String() string
}

// Unresolved is the state before the first resolution.
type Unresolved struct{}

// Pending means a resolution is in flight.
type Pending struct{}

// Authenticated carries the resolved principal and the channel that worked.
type Authenticated struct {
	Principal Principal
	Channel   Channel
}

// Unauthenticated means no credential exists and no handshake payload is
// available. The UI should offer an explicit sign-in.
type Unauthenticated struct{}

// Failed means resolution stopped on an error. KindTransient is retryable;
// any other kind needs a fresh sign-in.
type Failed struct {
	Kind goSession.ErrorKind
	Err  error
}

func (Unresolved) state()      {}
func (Pending) state()         {}
func (Authenticated) state()   {}
func (Unauthenticated) state() {}
func (Failed) state()          {}

func (Unresolved) String() string      { return "unresolved" }
func (Pending) String() string         { return "pending" }
func (Unauthenticated) String() string { return "unauthenticated" }

func (a Authenticated) String() string {
	return fmt.Sprintf("authenticated(%s via %s)", a.Principal.ID, a.Channel)
}

func (f Failed) String() string {
	return fmt.Sprintf("failed(%s)", f.Kind)
}

// Retryable reports whether resolving again may succeed without user action.
func (f Failed) Retryable() bool {
	return f.Kind == goSession.KindTransient
}
