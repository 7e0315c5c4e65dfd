package service

import (
	"context"
	"fmt"
	"strings"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type ratingGate struct {
	tx       repository.Transactor
	authz    AuthorizationPort
	notifier NotificationPort
	clock    Clock
}

func NewRatingGate(tx repository.Transactor, authz AuthorizationPort, notifier NotificationPort, clock Clock) RatingGate {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ratingGate{tx: tx, authz: authz, notifier: notifier, clock: clock}
}

// Eligibility never fails for outsiders; they simply may not rate.
func (s *ratingGate) Eligibility(ctx context.Context, borrowID, actorID int32) (*domain.RatingEligibility, error) {
	p, err := participation(ctx, s.authz, borrowID, actorID)
	if err != nil {
		return nil, err
	}
	out := &domain.RatingEligibility{}
	if !p.IsParticipant() {
		return out, nil
	}
	err = readTx(ctx, s.tx, "RatingGate.Eligibility", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetByID(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.Status != domain.BorrowStatusReturned {
			return nil
		}
		ratedUser, err := r.Ratings.HasUserRating(ctx, borrowID, actorID)
		if err != nil {
			return err
		}
		out.CanRateUser = !ratedUser
		if p.IsBorrower {
			ratedTool, err := r.Ratings.HasToolRating(ctx, borrowID)
			if err != nil {
				return err
			}
			out.CanRateTool = !ratedTool
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ratingGate) RateUser(ctx context.Context, borrowID, raterID, targetID int32, role domain.RatingRole, score int32, review string) (*domain.UserRating, error) {
	const op = "RatingGate.RateUser"
	enter(ctx, op, "borrowID", borrowID, "raterID", raterID, "targetID", targetID)
	ur, err := s.rateUser(ctx, borrowID, raterID, targetID, role, score, review)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.notifier, domain.Event{
		Type:       domain.EventRatingSubmitted,
		BorrowID:   borrowID,
		ActorID:    raterID,
		Recipients: []int32{targetID},
		Attributes: map[string]string{"subject": "user", "score": fmt.Sprint(score)},
		OccurredAt: ur.CreatedAt,
	})
	return ur, nil
}

func (s *ratingGate) rateUser(ctx context.Context, borrowID, raterID, targetID int32, role domain.RatingRole, score int32, review string) (*domain.UserRating, error) {
	p, err := participation(ctx, s.authz, borrowID, raterID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", raterID, borrowID)
	}

	var out *domain.UserRating
	err = inTx(ctx, s.tx, "RatingGate.RateUser", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		// An existing rating wins over any other complaint about the input.
		rated, err := r.Ratings.HasUserRating(ctx, borrowID, raterID)
		if err != nil {
			return err
		}
		if rated {
			return domain.NewError(domain.KindAlreadyRated, "user %d already rated borrow %d", raterID, borrowID)
		}
		if err := domain.ValidateScore(score); err != nil {
			return err
		}
		if _, err := domain.ParseRatingRole(string(role)); err != nil {
			return err
		}
		if raterID == targetID {
			return domain.NewError(domain.KindInvalidInput, "you cannot rate yourself")
		}
		if b.Counterparty(raterID) != targetID {
			return domain.NewError(domain.KindInvalidInput, "user %d is not the other party of borrow %d", targetID, borrowID)
		}
		if (role == domain.RatingRoleLender) != (targetID == b.LenderID) {
			return domain.NewError(domain.KindInvalidInput, "role %s does not match user %d", role, targetID)
		}
		if b.Status != domain.BorrowStatusReturned {
			return domain.NewError(domain.KindInvalidTransition, "ratings open once the tool is returned")
		}
		ur := &domain.UserRating{
			BorrowID:  borrowID,
			RaterID:   raterID,
			TargetID:  targetID,
			Role:      role,
			Score:     score,
			Review:    strings.TrimSpace(review),
			CreatedAt: s.clock.Now(),
		}
		if err := r.Ratings.InsertUserRating(ctx, ur); err != nil {
			return err
		}
		out = ur
		return nil
	})
	return out, err
}

func (s *ratingGate) RateTool(ctx context.Context, borrowID, raterID, score int32, review string) (*domain.ToolRating, error) {
	const op = "RatingGate.RateTool"
	enter(ctx, op, "borrowID", borrowID, "raterID", raterID)
	tr, lenderID, err := s.rateTool(ctx, borrowID, raterID, score, review)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.notifier, domain.Event{
		Type:       domain.EventRatingSubmitted,
		BorrowID:   borrowID,
		ToolID:     tr.ToolID,
		ActorID:    raterID,
		Recipients: []int32{lenderID},
		Attributes: map[string]string{"subject": "tool", "score": fmt.Sprint(score)},
		OccurredAt: tr.CreatedAt,
	})
	return tr, nil
}

func (s *ratingGate) rateTool(ctx context.Context, borrowID, raterID, score int32, review string) (*domain.ToolRating, int32, error) {
	p, err := participation(ctx, s.authz, borrowID, raterID)
	if err != nil {
		return nil, 0, err
	}
	if !p.IsBorrower {
		return nil, 0, notAuthorized("only the borrower may rate the tool")
	}

	var out *domain.ToolRating
	var lenderID int32
	err = inTx(ctx, s.tx, "RatingGate.RateTool", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		rated, err := r.Ratings.HasToolRating(ctx, borrowID)
		if err != nil {
			return err
		}
		if rated {
			return domain.NewError(domain.KindAlreadyRated, "tool of borrow %d already rated", borrowID)
		}
		if err := domain.ValidateScore(score); err != nil {
			return err
		}
		if b.Status != domain.BorrowStatusReturned {
			return domain.NewError(domain.KindInvalidTransition, "ratings open once the tool is returned")
		}
		tr := &domain.ToolRating{
			BorrowID:  borrowID,
			ToolID:    b.ToolID,
			RaterID:   raterID,
			Score:     score,
			Review:    strings.TrimSpace(review),
			CreatedAt: s.clock.Now(),
		}
		if err := r.Ratings.InsertToolRating(ctx, tr); err != nil {
			return err
		}
		out = tr
		lenderID = b.LenderID
		return nil
	})
	return out, lenderID, err
}
