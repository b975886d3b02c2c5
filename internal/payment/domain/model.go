package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the canonical payment lifecycle state.
type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusAcceptedForProc Status = "accepted_for_proc"
	StatusPartiallyPaid   Status = "partially_paid"
	StatusPaid            Status = "paid"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

// Terminal reports whether a payment can never leave this state again.
// partially_paid is deliberately not terminal: a follow-up payment may
// still complete it.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

type Payment struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	OrderID     int64           `json:"order_id" gorm:"not null;index"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(20,4);not null"`
	Currency    string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status      Status          `json:"status" gorm:"type:text;not null;default:new;index"`
	Backend     string          `json:"backend" gorm:"type:text;not null"`
	AmountPaid  decimal.Decimal `json:"amount_paid" gorm:"type:numeric(20,4);not null;default:0"`
	ExternalID  string          `json:"external_id" gorm:"type:varchar(64)"`
	Description string          `json:"description" gorm:"type:varchar(128)"`
	CreatedOn   time.Time       `json:"created_on" gorm:"not null;index"`
	PaidOn      *time.Time      `json:"paid_on" gorm:"index"`
}

func (Payment) TableName() string { return "payments" }

// FullyPaid reports whether the received amount covers the owed amount.
func (p *Payment) FullyPaid() bool {
	return p.AmountPaid.GreaterThanOrEqual(p.Amount)
}

// StatusChange is published on the event bus for every real transition.
type StatusChange struct {
	Payment   *Payment
	OldStatus Status
	NewStatus Status
}

// CallbackEvent is the canonical decoded form of a gateway notification.
// It lives only for the duration of one callback.
type CallbackEvent struct {
	GatewayTransactionID string
	PaymentRef           int64
	ClaimedAmount        decimal.Decimal
	ClaimedCurrency      string
	RawStatus            string
	PayerEmail           string
	Description          string
}

// Verdict is the literal token echoed back to the gateway. The exact
// strings are part of each gateway's wire protocol and must not change.
type Verdict string

const (
	VerdictOK          Verdict = "OK"
	VerdictTrue        Verdict = "TRUE"
	VerdictSigErr      Verdict = "SIG ERR"
	VerdictIDErr       Verdict = "ID ERR"
	VerdictIPErr       Verdict = "IP ERR"
	VerdictCRCErr      Verdict = "CRC ERR"
	VerdictPaymentErr  Verdict = "PAYMENT ERR"
	VerdictCurrencyErr Verdict = "CURRENCY ERR"
)
