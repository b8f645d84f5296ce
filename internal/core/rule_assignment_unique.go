package core

import (
	"context"
	"fmt"
	"sort"

	"plazacore/pkg/domain"
)

// assignmentUniquenessRule blocks commits where a priority key holds more
// than one assignment. The store already rejects duplicate keys at create
// time; the rule catches states assembled through any other path.
type assignmentUniquenessRule struct{}

// NewAssignmentUniquenessRule constructs the one-assignment-per-key rule.
func NewAssignmentUniquenessRule() domain.Rule {
	return assignmentUniquenessRule{}
}

func (assignmentUniquenessRule) Name() string { return "assignment_uniqueness" }

func (r assignmentUniquenessRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	byKey := map[int][]domain.Assignment{}
	for _, a := range view.ListAssignments() {
		byKey[a.PriorityKey] = append(byKey[a.PriorityKey], a)
	}
	keys := make([]int, 0, len(byKey))
	for key, group := range byKey {
		if len(group) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Ints(keys)
	var res domain.Result
	for _, key := range keys {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("priority key %d holds %d assignments", key, len(byKey[key])),
			Entity:   domain.EntityAssignment,
			EntityID: byKey[key][0].ID,
		})
	}
	return res, nil
}
