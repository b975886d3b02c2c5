// Package lifecycle owns the canonical payment state graph:
//
//	new -> in_progress -> accepted_for_proc -> partially_paid -> paid
//	                                  \-> failed
//	                                  \-> cancelled
//
// Forward jumps are legal (a gateway may settle a new payment in one
// callback); backward moves and moves out of a terminal state are not.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/events"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	Bus   *events.Bus
	Clock clock.Clock
}

type Machine struct {
	log   *zap.Logger
	repo  domain.Repository
	bus   *events.Bus
	clock clock.Clock
}

func NewMachine(p Params) domain.StateMachine {
	return &Machine{
		log:   p.Log.Named("payment.lifecycle"),
		repo:  p.Repo,
		bus:   p.Bus,
		clock: p.Clock,
	}
}

var forwardRank = map[domain.Status]int{
	domain.StatusNew:             0,
	domain.StatusInProgress:      1,
	domain.StatusAcceptedForProc: 2,
	domain.StatusPartiallyPaid:   3,
	domain.StatusPaid:            4,
}

func legal(from, to domain.Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case domain.StatusCancelled, domain.StatusFailed:
		return true
	}
	rankFrom, okFrom := forwardRank[from]
	rankTo, okTo := forwardRank[to]
	return okFrom && okTo && rankTo > rankFrom
}

// ChangeStatus is the sole mutation path for payment status. Equal status
// is an idempotent no-op and emits nothing; a real change persists the
// payment and publishes exactly one status-changed event.
func (m *Machine) ChangeStatus(ctx context.Context, db *gorm.DB, payment *domain.Payment, next domain.Status) error {
	if payment.Status == next {
		return nil
	}
	if !legal(payment.Status, next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, payment.Status, next)
	}

	old := payment.Status
	payment.Status = next
	if err := m.repo.Save(ctx, db, payment); err != nil {
		payment.Status = old
		return err
	}

	m.log.Info("payment status changed",
		zap.Int64("payment_id", payment.ID),
		zap.String("backend", payment.Backend),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(next)),
	)
	m.bus.Publish(ctx, domain.StatusChange{Payment: payment, OldStatus: old, NewStatus: next})
	return nil
}

// OnSuccess records a balance income. Without an explicit amount the full
// expected amount is assumed (gateways with no partial-payment concept).
// AmountPaid never decreases, so a replayed or stale notification cannot
// claw back money already recorded. Returns whether the payment is now
// fully settled.
func (m *Machine) OnSuccess(ctx context.Context, db *gorm.DB, payment *domain.Payment, amount *decimal.Decimal) (bool, error) {
	received := payment.Amount
	if amount != nil {
		received = *amount
	}
	total := payment.AmountPaid
	if received.GreaterThan(total) {
		total = received
	}

	next := domain.StatusPartiallyPaid
	if total.GreaterThanOrEqual(payment.Amount) {
		next = domain.StatusPaid
	}
	// The transition is checked before any money is recorded, so a rejected
	// settlement leaves the payment exactly as it was.
	if err := m.ChangeStatus(ctx, db, payment, next); err != nil {
		return false, err
	}

	if payment.PaidOn == nil {
		now := m.clock.Now().UTC()
		payment.PaidOn = &now
	}
	payment.AmountPaid = total
	if err := m.repo.Save(ctx, db, payment); err != nil {
		return false, err
	}
	return payment.FullyPaid(), nil
}

// OnFailure moves the payment to failed.
func (m *Machine) OnFailure(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return m.ChangeStatus(ctx, db, payment, domain.StatusFailed)
}
