// Package payment moves deposit money for the lifecycle engine.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"
	"toolshare-backend/internal/service"

	"github.com/google/uuid"
)

const serviceName = "ledger"

// LedgerProvider books deposit movements as ledger_transactions rows.
// Holds debit the payer, refunds credit the payer back and forfeits
// credit the payee. The idempotency key is the row's reference, so a
// repeated movement returns the booked reference without a second row.
type LedgerProvider struct {
	ledger repository.LedgerRepository
	now    func() time.Time
}

var _ service.TxPaymentProvider = (*LedgerProvider)(nil)

func NewLedgerProvider(ledger repository.LedgerRepository) *LedgerProvider {
	return &LedgerProvider{ledger: ledger, now: func() time.Time { return time.Now().UTC() }}
}

// Bind returns a provider that books through the transaction's ledger.
func (p *LedgerProvider) Bind(r repository.Repos) service.PaymentProvider {
	return &LedgerProvider{ledger: r.Ledger, now: p.now}
}

func (p *LedgerProvider) HoldDeposit(ctx context.Context, d service.DepositPayment) (string, error) {
	return p.book(ctx, "HoldDeposit", d, d.PayerID, -d.AmountCents, domain.TransactionTypeDepositHold,
		fmt.Sprintf("Deposit held for borrow %d", d.BorrowID))
}

func (p *LedgerProvider) RefundDeposit(ctx context.Context, d service.DepositPayment) (string, error) {
	return p.book(ctx, "RefundDeposit", d, d.PayerID, d.AmountCents, domain.TransactionTypeDepositRefund,
		fmt.Sprintf("Deposit refunded for borrow %d", d.BorrowID))
}

func (p *LedgerProvider) ForfeitDeposit(ctx context.Context, d service.DepositPayment) (string, error) {
	desc := fmt.Sprintf("Deposit forfeited for borrow %d", d.BorrowID)
	if d.Reason != "" {
		desc += ": " + d.Reason
	}
	return p.book(ctx, "ForfeitDeposit", d, d.PayeeID, d.AmountCents, domain.TransactionTypeDepositForfeit, desc)
}

func (p *LedgerProvider) book(ctx context.Context, op string, d service.DepositPayment, userID, amount int32, typ domain.TransactionType, desc string) (string, error) {
	logger.ExternalServiceCall(serviceName, op, "borrowID", d.BorrowID, "amountCents", d.AmountCents)
	if d.AmountCents <= 0 {
		err := fmt.Errorf("amount must be positive, got %d", d.AmountCents)
		logger.ExternalServiceResult(serviceName, op, err)
		return "", err
	}

	ref := d.IdempotencyKey
	if ref == "" {
		ref = uuid.NewString()
	}
	borrowID := d.BorrowID
	err := p.ledger.CreateTransaction(ctx, &domain.LedgerTransaction{
		UserID:          userID,
		Amount:          amount,
		Type:            typ,
		RelatedBorrowID: &borrowID,
		Reference:       ref,
		Description:     desc,
		CreatedOn:       p.now(),
	})
	if errors.Is(err, domain.ErrConflict) {
		logger.ExternalServiceResult(serviceName, op, nil, "reference", ref, "duplicate", true)
		return ref, nil
	}
	logger.ExternalServiceResult(serviceName, op, err, "reference", ref)
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Noop accepts every movement without recording it.
type Noop struct{}

var _ service.PaymentProvider = Noop{}

func (Noop) HoldDeposit(_ context.Context, d service.DepositPayment) (string, error) {
	return "noop-" + d.IdempotencyKey, nil
}

func (Noop) RefundDeposit(_ context.Context, d service.DepositPayment) (string, error) {
	return "noop-" + d.IdempotencyKey, nil
}

func (Noop) ForfeitDeposit(_ context.Context, d service.DepositPayment) (string, error) {
	return "noop-" + d.IdempotencyKey, nil
}
