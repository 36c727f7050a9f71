package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/housing-service/internal/domain"
)

// resolveFunc heals a single conflict.
type resolveFunc func(ctx context.Context, c Conflict) error

// resolvable reports whether a resolver exists for t.
func resolvable(t ConflictType) bool {
	return t == OrphanedReference
}

// deactivateOrphan ends the dangling allocation. An allocation that was
// already ended in the meantime needs no work.
func deactivateOrphan(ledger Ledger, now func() time.Time) resolveFunc {
	return func(ctx context.Context, c Conflict) error {
		if len(c.AllocationIDs) != 1 {
			return errors.New("orphaned-reference conflict must name exactly one allocation")
		}
		_, err := ledger.DeactivateIfActive(ctx, c.AllocationIDs[0], domain.Deallocation{
			Actor:  domain.SystemReconcilerActor,
			Reason: string(OrphanedReference),
			At:     now(),
		})
		return err
	}
}
