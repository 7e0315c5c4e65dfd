package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type HandoverConfig struct {
	Policy      domain.ExpiryPolicy
	MaxAttempts int32
	HashCost    int
}

type handoverVerifier struct {
	tx    repository.Transactor
	authz AuthorizationPort
	codes CodeGenerator
	clock Clock
	cfg   HandoverConfig
}

func NewHandoverVerifier(tx repository.Transactor, authz AuthorizationPort, codes CodeGenerator, clock Clock, cfg HandoverConfig) HandoverVerifier {
	if cfg.Policy.ExpireAfter <= 0 {
		cfg.Policy = domain.ExpiryPolicy{WarnAfter: 10 * time.Minute, ExpireAfter: 15 * time.Minute}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &handoverVerifier{tx: tx, authz: authz, codes: codes, clock: clock, cfg: cfg}
}

func (s *handoverVerifier) view(c *domain.HandoverCode, now time.Time) *domain.CodeView {
	return &domain.CodeView{
		BorrowID:    c.BorrowID,
		Type:        c.Type,
		Status:      c.StatusAt(s.cfg.Policy, now),
		GeneratorID: c.GeneratorID,
		GeneratedAt: c.GeneratedAt,
		ExpiresAt:   c.GeneratedAt.Add(s.cfg.Policy.ExpireAfter),
		Remaining:   s.cfg.Policy.Remaining(c.GeneratedAt, now),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *handoverVerifier) Generate(ctx context.Context, borrowID int32, typ domain.HandoverType, generatorID int32) (*domain.CodeView, error) {
	const op = "HandoverVerifier.Generate"
	enter(ctx, op, "borrowID", borrowID, "type", typ, "generatorID", generatorID)
	v, err := s.generate(ctx, borrowID, typ, generatorID)
	exit(ctx, op, err, "borrowID", borrowID)
	return v, err
}

func (s *handoverVerifier) generate(ctx context.Context, borrowID int32, typ domain.HandoverType, generatorID int32) (*domain.CodeView, error) {
	if _, err := domain.ParseHandoverType(string(typ)); err != nil {
		return nil, err
	}
	p, err := participation(ctx, s.authz, borrowID, generatorID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", generatorID, borrowID)
	}

	plain, err := s.codes.NewCode()
	if err != nil {
		return nil, domain.Infrastructure("generate code", err)
	}
	plain = normalizeCode(plain)
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cfg.HashCost)
	if err != nil {
		return nil, domain.Infrastructure("hash code", err)
	}

	var out *domain.CodeView
	err = inTx(ctx, s.tx, "HandoverVerifier.Generate", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.Status != typ.RequiredStatus() {
			return domain.NewError(domain.KindInvalidTransition, "%s code can only be issued while %s", typ, typ.RequiredStatus())
		}
		if typ.GeneratorOf(b) != generatorID {
			return notAuthorized("the %s code is issued by the party handing the tool over", typ)
		}
		if err := r.Handovers.DeleteActive(ctx, b.ID, typ); err != nil {
			return err
		}
		now := s.clock.Now()
		c := &domain.HandoverCode{
			BorrowID:    b.ID,
			Type:        typ,
			CodeHash:    string(hash),
			GeneratorID: generatorID,
			GeneratedAt: now,
		}
		if err := r.Handovers.Insert(ctx, c); err != nil {
			return err
		}
		out = s.view(c, now)
		out.Code = plain
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *handoverVerifier) Verify(ctx context.Context, borrowID int32, typ domain.HandoverType, code string, verifierID int32) error {
	const op = "HandoverVerifier.Verify"
	enter(ctx, op, "borrowID", borrowID, "type", typ, "verifierID", verifierID)
	err := s.verify(ctx, borrowID, typ, normalizeCode(code), verifierID)
	exit(ctx, op, err, "borrowID", borrowID)
	return err
}

func (s *handoverVerifier) verify(ctx context.Context, borrowID int32, typ domain.HandoverType, submitted string, verifierID int32) error {
	if _, err := domain.ParseHandoverType(string(typ)); err != nil {
		return err
	}
	if submitted == "" {
		return domain.NewError(domain.KindInvalidInput, "a code is required")
	}
	p, err := participation(ctx, s.authz, borrowID, verifierID)
	if err != nil {
		return err
	}
	if !p.IsParticipant() {
		return notAuthorized("user %d is not part of borrow %d", verifierID, borrowID)
	}

	// A wrong guess still commits so the attempt counter survives; the
	// rejection is reported after the transaction.
	var outcome error
	err = inTx(ctx, s.tx, "HandoverVerifier.Verify", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.Status != typ.RequiredStatus() {
			return domain.NewError(domain.KindInvalidTransition, "%s code can only be verified while %s", typ, typ.RequiredStatus())
		}
		c, err := r.Handovers.GetActive(ctx, b.ID, typ)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindNoActiveCode, "no active %s code for borrow %d", typ, b.ID)
		}
		if err != nil {
			return err
		}
		if c.GeneratorID == verifierID {
			return domain.NewError(domain.KindSelfVerification, "the code must be verified by the other party")
		}
		now := s.clock.Now()
		if s.cfg.Policy.Expired(c.GeneratedAt, now) {
			return domain.NewError(domain.KindExpired, "%s code expired, generate a new one", typ)
		}
		if c.Attempts >= s.cfg.MaxAttempts {
			return domain.NewError(domain.KindTooManyAttempts, "too many attempts, generate a new code")
		}
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(submitted)) != nil {
			n, err := r.Handovers.IncrementAttempts(ctx, c.ID)
			if err != nil {
				return err
			}
			if n >= s.cfg.MaxAttempts {
				outcome = domain.NewError(domain.KindTooManyAttempts, "too many attempts, generate a new code")
			} else {
				outcome = domain.NewError(domain.KindMismatch, "code does not match, %d attempts left", s.cfg.MaxAttempts-n)
			}
			return nil
		}
		return r.Handovers.MarkConsumed(ctx, c.ID, verifierID, now)
	})
	if err != nil {
		return err
	}
	return outcome
}

func (s *handoverVerifier) Status(ctx context.Context, borrowID int32, typ domain.HandoverType, actorID int32) (*domain.CodeView, error) {
	if _, err := domain.ParseHandoverType(string(typ)); err != nil {
		return nil, err
	}
	p, err := participation(ctx, s.authz, borrowID, actorID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", actorID, borrowID)
	}
	var out *domain.CodeView
	err = readTx(ctx, s.tx, "HandoverVerifier.Status", func(ctx context.Context, r repository.Repos) error {
		c, err := r.Handovers.GetLatest(ctx, borrowID, typ)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindNoActiveCode, "no %s code issued for borrow %d", typ, borrowID)
		}
		if err != nil {
			return err
		}
		out = s.view(c, s.clock.Now())
		return nil
	})
	return out, err
}

func (s *handoverVerifier) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "HandoverVerifier.PurgeExpired"
	cutoff := s.clock.Now().Add(-s.cfg.Policy.ExpireAfter)
	var n int64
	err := inTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		var err error
		n, err = r.Handovers.DeleteUnconsumedBefore(ctx, cutoff)
		return err
	})
	exit(ctx, op, err, "purged", n)
	return n, err
}
