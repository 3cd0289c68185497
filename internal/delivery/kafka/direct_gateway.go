package kafka

import (
	"context"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/coupondeck/entitlement-ledger/internal/usecase"
)

// DirectGateway calls the service in process, used when event-driven mode
// is disabled.
type DirectGateway struct {
	service *usecase.EntitlementService
}

func NewDirectGateway(service *usecase.EntitlementService) usecase.EntitlementGateway {
	return &DirectGateway{service: service}
}

func (g *DirectGateway) IssueEntitlement(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
	return g.service.IssueEntitlement(ctx, userID, orderNumbers, amountPaid)
}

func (g *DirectGateway) GetBalance(ctx context.Context, userID string) (int64, error) {
	return g.service.GetBalance(ctx, userID)
}

func (g *DirectGateway) Redeem(ctx context.Context, userID string) (int, error) {
	return g.service.Redeem(ctx, userID)
}

func (g *DirectGateway) ResetToZero(ctx context.Context, userID string) (int64, error) {
	return g.service.ResetToZero(ctx, userID)
}
