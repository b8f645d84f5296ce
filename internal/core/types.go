package core

import "plazacore/pkg/domain"

type (
	EntityType         = domain.EntityType
	OutcomeKind        = domain.OutcomeKind
	Severity           = domain.Severity
	Base               = domain.Base
	Facility           = domain.Facility
	Request            = domain.Request
	Assignment         = domain.Assignment
	HistoryRecord      = domain.HistoryRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityFacility      = domain.EntityFacility
	EntityRequest       = domain.EntityRequest
	EntityAssignment    = domain.EntityAssignment
	EntityHistoryRecord = domain.EntityHistoryRecord
)

const (
	OutcomeAssigned         = domain.OutcomeAssigned
	OutcomeDisplaced        = domain.OutcomeDisplaced
	OutcomeUnassignable     = domain.OutcomeUnassignable
	OutcomeDuplicateRemoved = domain.OutcomeDuplicateRemoved
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
