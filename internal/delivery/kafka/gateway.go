package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/config"
	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/coupondeck/entitlement-ledger/internal/usecase"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Gateway satisfies usecase.EntitlementGateway by producing a request record
// and waiting for the correlated reply on this instance's reply topic.
type Gateway struct {
	client      *kgo.Client
	cfg         *config.Config
	pendingResp sync.Map
}

func NewGateway(cfg *config.Config, client *kgo.Client) *Gateway {
	return &Gateway{
		client: client,
		cfg:    cfg,
	}
}

func (g *Gateway) IssueEntitlement(ctx context.Context, userID string, orderNumbers []string, amountPaid int64) (*domain.IssueResult, error) {
	req := g.newRequest()
	req.UserID = userID
	req.OrderNumbers = orderNumbers
	req.AmountPaid = amountPaid

	resp, err := g.requestReply(ctx, TopicIssueRequest, []byte(userID), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, mapErrorCode(resp.ErrorCode, resp.ErrorMessage)
	}
	return &domain.IssueResult{
		RecordID: resp.Result.RecordID,
		Granted:  resp.Result.Granted,
	}, nil
}

func (g *Gateway) GetBalance(ctx context.Context, userID string) (int64, error) {
	req := g.newRequest()
	req.UserID = userID

	resp, err := g.requestReply(ctx, TopicBalanceRequest, []byte(userID), req)
	if err != nil {
		return 0, err
	}
	if resp.Status == StatusError {
		return 0, mapErrorCode(resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.Result.Balance, nil
}

func (g *Gateway) Redeem(ctx context.Context, userID string) (int, error) {
	req := g.newRequest()
	req.UserID = userID

	resp, err := g.requestReply(ctx, TopicRedeemRequest, []byte(userID), req)
	if err != nil {
		return 0, err
	}
	if resp.Status == StatusError {
		return 0, mapErrorCode(resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.Result.Remaining, nil
}

func (g *Gateway) ResetToZero(ctx context.Context, userID string) (int64, error) {
	req := g.newRequest()
	req.UserID = userID

	resp, err := g.requestReply(ctx, TopicResetRequest, []byte(userID), req)
	if err != nil {
		return 0, err
	}
	if resp.Status == StatusError {
		return 0, mapErrorCode(resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.Result.Affected, nil
}

func (g *Gateway) newRequest() RequestPayload {
	return RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID),
	}
}

func (g *Gateway) requestReply(ctx context.Context, topic string, key []byte, req RequestPayload) (*ResponsePayload, error) {
	respChan := make(chan *ResponsePayload, 1)
	g.pendingResp.Store(req.CorrelationID, respChan)
	defer g.pendingResp.Delete(req.CorrelationID)

	payload, _ := json.Marshal(req)
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: payload,
	}

	if err := g.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(RequestTimeout):
		return nil, fmt.Errorf("%w: timeout waiting for response", domain.ErrStoreUnavailable)
	}
}

// HandleResponse routes a reply record back to the waiting request, if any.
func (g *Gateway) HandleResponse(payload []byte) {
	var resp ResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		log.Printf("Failed to decode response payload: %v", err)
		return
	}

	if ch, ok := g.pendingResp.Load(resp.CorrelationID); ok {
		ch.(chan *ResponsePayload) <- &resp
		return
	}

	log.Printf("No pending response for correlation ID %s", resp.CorrelationID)
}

func mapErrorCode(code, message string) error {
	switch code {
	case ErrCodeMissingFields:
		return domain.ErrMissingFields
	case ErrCodeInsufficientPayment:
		return domain.ErrInsufficientPayment
	case ErrCodeDuplicateOrder:
		return domain.ErrDuplicateOrder
	case ErrCodeAlreadyIssuedToday:
		return domain.ErrAlreadyIssuedToday
	case ErrCodeInsufficientBalance:
		return domain.ErrInsufficientBalance
	case ErrCodeStoreUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, message)
	default:
		return errors.New(message)
	}
}

var _ usecase.EntitlementGateway = (*Gateway)(nil)
