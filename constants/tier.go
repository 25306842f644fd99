package constants

// Tier is the capability tier resolved for a caller.
type Tier string

const (
	TierUnauthenticated Tier = "unauthenticated"
	TierFree            Tier = "free"
	TierPro             Tier = "pro"
	TierAdmin           Tier = "admin"
)

// Plan is the persisted entitlement state of a subscriber. Only billing events move it.
type Plan string

// Stable values (store these exact strings).
const (
	PlanNone Plan = "none"
	PlanPro  Plan = "pro"
)

// RoleAdmin is the identity role that grants the admin tier out of band.
const RoleAdmin = "admin"

// Default character budgets per tier.
const (
	DefaultFreeCharLimit = 2000
	DefaultProCharLimit  = 100000
)
