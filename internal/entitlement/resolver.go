package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
)

// Limits are the character budgets per tier.
type Limits struct {
	FreeChars int
	ProChars  int
}

func (l Limits) withDefaults() Limits {
	if l.FreeChars <= 0 {
		l.FreeChars = constants.DefaultFreeCharLimit
	}
	if l.ProChars <= 0 {
		l.ProChars = constants.DefaultProCharLimit
	}
	return l
}

// Snapshot is the tier decision for one request. It is taken once, at request start,
// and carried for the rest of the request.
type Snapshot struct {
	Tier         constants.Tier
	SubscriberID string
	CharBudget   int
	CanUpload    bool
	// MaxCharBudget is the largest budget any tier offers; callers use it to tell
	// "upgrade would help" apart from "too long for everyone".
	MaxCharBudget int
}

func (s Snapshot) Authenticated() bool {
	return s.Tier != constants.TierUnauthenticated
}

type Resolver struct {
	store  Store
	limits Limits
	logger *slog.Logger
}

func NewResolver(store Store, limits Limits, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, limits: limits.withDefaults(), logger: logger}
}

// Resolve reads the subscriber's state once and derives the snapshot. A nil identity
// resolves to Unauthenticated without touching the store.
func (r *Resolver) Resolve(ctx context.Context, id *identity.Identity) (Snapshot, error) {
	if id == nil || strings.TrimSpace(id.ID) == "" {
		return r.Derive(nil, State{}, false), nil
	}
	st, found, err := r.store.Get(ctx, id.ID)
	if err != nil {
		common.LoggerFromContext(ctx, r.logger).Error("entitlement.resolve.store_error", "subscriber_id", id.ID, "error", err)
		return Snapshot{}, common.NewAppError(common.CodeInternal, "entitlement lookup failed", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	return r.Derive(id, st, found), nil
}

// Derive is the pure tier decision.
func (r *Resolver) Derive(id *identity.Identity, st State, found bool) Snapshot {
	tier := TierFor(id, st, found)
	budget, upload := r.limits.For(tier)
	snap := Snapshot{
		Tier:          tier,
		CharBudget:    budget,
		CanUpload:     upload,
		MaxCharBudget: r.limits.ProChars,
	}
	if id != nil {
		snap.SubscriberID = id.ID
	}
	return snap
}

// TierFor applies the precedence: admin role, then the stored plan, then the identity's plan claim.
// A stored record is authoritative once present, so a revoked subscription beats a stale claim.
func TierFor(id *identity.Identity, st State, found bool) constants.Tier {
	if id == nil || strings.TrimSpace(id.ID) == "" {
		return constants.TierUnauthenticated
	}
	if id.IsAdmin() {
		return constants.TierAdmin
	}
	if found {
		if st.Plan == constants.PlanPro {
			return constants.TierPro
		}
		return constants.TierFree
	}
	if strings.EqualFold(id.Plan, string(constants.PlanPro)) {
		return constants.TierPro
	}
	return constants.TierFree
}

// For returns the character budget and upload permission of a tier.
func (l Limits) For(tier constants.Tier) (int, bool) {
	l = l.withDefaults()
	switch tier {
	case constants.TierPro, constants.TierAdmin:
		return l.ProChars, true
	case constants.TierFree:
		return l.FreeChars, false
	default:
		return 0, false
	}
}
