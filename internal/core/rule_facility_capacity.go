package core

import (
	"context"
	"fmt"

	"plazacore/pkg/domain"
)

// facilityCapacityRule blocks any commit that would leave a facility holding
// more assignments than it has seats, or an occupancy counter above capacity.
// The counter is allowed to drift below the true assignment count; Rebalance
// reconciles that without rule involvement.
type facilityCapacityRule struct{}

// NewFacilityCapacityRule constructs the capacity invariant rule.
func NewFacilityCapacityRule() domain.Rule {
	return facilityCapacityRule{}
}

func (facilityCapacityRule) Name() string { return "facility_capacity" }

func (r facilityCapacityRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	held := map[string]int{}
	for _, a := range view.ListAssignments() {
		held[a.FacilityID]++
	}
	var res domain.Result
	for _, f := range view.ListFacilities() {
		if count := held[f.ID]; count > f.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("facility %q holds %d assignments above capacity %d", f.Code, count, f.Capacity),
				Entity:   domain.EntityFacility,
				EntityID: f.ID,
			})
		}
		if f.Occupied > f.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("facility %q occupancy %d exceeds capacity %d", f.Code, f.Occupied, f.Capacity),
				Entity:   domain.EntityFacility,
				EntityID: f.ID,
			})
		}
	}
	return res, nil
}
