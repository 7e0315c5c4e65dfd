package service

import (
	"toolshare-backend/internal/repository"
)

// Engine bundles the lifecycle services over one store.
type Engine struct {
	Availability AvailabilityTracker
	Borrows      BorrowLifecycle
	Handover     HandoverVerifier
	Deposits     DepositEscrow
	Ratings      RatingGate
}

type EngineDeps struct {
	Tx       repository.Transactor
	Authz    AuthorizationPort
	Payments PaymentProvider
	Notifier NotificationPort
	Clock    Clock
	Codes    CodeGenerator
}

func NewEngine(deps EngineDeps, lifecycle LifecycleConfig, handover HandoverConfig) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Codes == nil {
		deps.Codes = RandomCodes{}
	}
	return &Engine{
		Availability: NewAvailabilityTracker(deps.Tx, deps.Clock),
		Borrows:      NewBorrowLifecycle(deps.Tx, deps.Authz, deps.Payments, deps.Notifier, deps.Clock, lifecycle),
		Handover:     NewHandoverVerifier(deps.Tx, deps.Authz, deps.Codes, deps.Clock, handover),
		Deposits:     NewDepositEscrow(deps.Tx, deps.Authz, deps.Payments, deps.Notifier, deps.Clock),
		Ratings:      NewRatingGate(deps.Tx, deps.Authz, deps.Notifier, deps.Clock),
	}
}
