package flows

import (
	"context"

	"github.com/MrEthical07/goSession/principal"
)

// RoleChangeDeps captures role change dependencies.
type RoleChangeDeps struct {
	NewStamp   func() (string, error)
	UpdateRole func(ctx context.Context, id string, role principal.Role, stamp string) (principal.Record, error)
	Invalidate func(id string)
}

// RunChangeRole persists role together with a fresh stamp, so tokens carrying
// the previous role stop verifying.
func RunChangeRole(ctx context.Context, id string, role principal.Role, deps RoleChangeDeps) (principal.Record, error) {
	stamp, err := deps.NewStamp()
	if err != nil {
		return principal.Record{}, err
	}

	rec, err := deps.UpdateRole(ctx, id, role, stamp)
	deps.Invalidate(id)
	if err != nil {
		return principal.Record{}, err
	}
	return rec, nil
}
