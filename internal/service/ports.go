package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

// AuthorizationPort answers who an actor is with respect to a borrow.
// Implementations must not be called from inside a lifecycle transaction.
type AuthorizationPort interface {
	IsParticipant(ctx context.Context, borrowID, actorID int32) (domain.Participation, error)
	IsAdmin(ctx context.Context, actorID int32) (bool, error)
}

// NotificationPort receives events after the producing transaction has
// committed. Errors are logged and otherwise ignored.
type NotificationPort interface {
	Publish(ctx context.Context, event domain.Event) error
}

// DepositPayment describes one money movement of a deposit.
type DepositPayment struct {
	IdempotencyKey string
	BorrowID       int32
	PayerID        int32
	PayeeID        int32
	AmountCents    int32
	Reason         string
}

// PaymentProvider moves deposit money. Each call returns the provider's
// reference for the movement. A repeated IdempotencyKey must not move
// money twice; the provider returns the original reference instead.
type PaymentProvider interface {
	HoldDeposit(ctx context.Context, p DepositPayment) (string, error)
	RefundDeposit(ctx context.Context, p DepositPayment) (string, error)
	ForfeitDeposit(ctx context.Context, p DepositPayment) (string, error)
}

// TxPaymentProvider is a PaymentProvider that records movements in the
// engine's own store. Bind returns a provider that writes through r, so
// movements commit or roll back with the lifecycle transaction.
type TxPaymentProvider interface {
	PaymentProvider
	Bind(r repository.Repos) PaymentProvider
}

func bindPayments(p PaymentProvider, r repository.Repos) PaymentProvider {
	if tp, ok := p.(TxPaymentProvider); ok {
		return tp.Bind(r)
	}
	return p
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type CodeGenerator interface {
	NewCode() (string, error)
}

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 6
)

// RandomCodes draws handover codes from crypto/rand.
type RandomCodes struct{}

func (RandomCodes) NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.Event) error { return nil }

type noopPayments struct{}

func (noopPayments) HoldDeposit(context.Context, DepositPayment) (string, error) { return "", nil }
func (noopPayments) RefundDeposit(context.Context, DepositPayment) (string, error) { return "", nil }
func (noopPayments) ForfeitDeposit(context.Context, DepositPayment) (string, error) { return "", nil }
