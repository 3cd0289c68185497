package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/coupondeck/entitlement-ledger/internal/policy"
	"github.com/coupondeck/entitlement-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EntitlementService orchestrates the issuance policy and the ledger store.
// All business rejections come back as domain sentinel errors; anything else
// from the store surfaces wrapped in domain.ErrStoreUnavailable so delivery
// layers can tell retryable infrastructure faults from rule rejections.
type EntitlementService struct {
	store  repository.Store
	policy *policy.Policy
	now    func() time.Time
}

func NewEntitlementService(store repository.Store, pol *policy.Policy) *EntitlementService {
	return &EntitlementService{store: store, policy: pol, now: time.Now}
}

func (s *EntitlementService) IssueEntitlement(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
	if err := s.policy.ValidateIssueRequest(userID, orderNumbers, amountPaid); err != nil {
		return nil, err
	}
	grant, err := s.policy.Grant(amountPaid)
	if err != nil {
		return nil, err
	}

	arg := repository.InsertEntitlementParams{
		ID:         uuid.New().String(),
		UserID:     userID,
		OrderKey:   s.policy.OrderKey(orderNumbers),
		AmountPaid: amountPaid,
		Granted:    grant,
		IssuedAt:   s.now().UTC(),
	}

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		switch s.policy.Mode() {
		case policy.DedupOrder:
			if err := q.AcquireKeyLock(ctx, "order:"+arg.OrderKey); err != nil {
				return err
			}
			exists, err := q.ExistsByOrderKey(ctx, arg.OrderKey)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateOrder
			}
		case policy.DedupDaily:
			if err := q.AcquireKeyLock(ctx, "user:"+userID); err != nil {
				return err
			}
			from, to := s.policy.DayWindow(s.now())
			exists, err := q.ExistsByUserBetween(ctx, userID, from, to)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrAlreadyIssuedToday
			}
		}

		_, err := q.InsertEntitlement(ctx, arg)
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	return &domain.IssueResult{RecordID: arg.ID, Granted: grant}, nil
}

func (s *EntitlementService) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.SumBalance(ctx, userID)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return balance, nil
}

// Redeem consumes one entitlement from the user's oldest record that still
// has any left. Returns the decremented record's remaining count.
func (s *EntitlementService) Redeem(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.AcquireKeyLock(ctx, "user:"+userID); err != nil {
			return err
		}
		rec, err := q.RedeemOldest(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrInsufficientBalance
			}
			return err
		}
		remaining = rec.Granted
		return nil
	})
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return remaining, nil
}

// ResetToZero zeroes every record of the user and reports how many records
// changed. An unknown user, or one whose records are already all zero, is a
// no-op with affected == 0, not an error.
func (s *EntitlementService) ResetToZero(ctx context.Context, userID string) (int64, error) {
	affected, err := s.store.ZeroOut(ctx, userID)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return affected, nil
}

// wrapStoreErr lets business rejections pass through untouched and folds
// everything else into ErrStoreUnavailable.
func wrapStoreErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrDuplicateOrder),
		errors.Is(err, domain.ErrAlreadyIssuedToday),
		errors.Is(err, domain.ErrInsufficientBalance):
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
