package domain

// ActorRole differentiates administrators from regular staff callers.
type ActorRole string

const (
	ActorRoleAdmin ActorRole = "ADMIN"
	ActorRoleStaff ActorRole = "STAFF"
)

// SystemReconcilerActor attributes reconciler-driven changes in the audit trail.
const SystemReconcilerActor = "system:reconciler"
