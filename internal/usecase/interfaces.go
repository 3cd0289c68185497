package usecase

import (
	"context"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
)

// EntitlementGateway is what the HTTP delivery layer talks to. It is either
// the Kafka request/reply gateway or a direct in-process call into the
// service, depending on configuration.
type EntitlementGateway interface {
	IssueEntitlement(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	Redeem(ctx context.Context, userID string) (int, error)
	ResetToZero(ctx context.Context, userID string) (int64, error)
}
