package core

import "plazacore/pkg/domain"

// NewDefaultRulesEngine returns a rules engine preloaded with the invariants
// every committed state must satisfy. Stores evaluate the engine before
// making a transaction visible; a blocking violation aborts the commit.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewFacilityCapacityRule())
	engine.Register(NewAssignmentUniquenessRule())
	return engine
}
