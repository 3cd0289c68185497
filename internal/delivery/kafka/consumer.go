package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/config"
	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/coupondeck/entitlement-ledger/internal/usecase"
	"github.com/twmb/franz-go/pkg/kgo"
)

type Consumer struct {
	client  *kgo.Client
	cfg     *config.Config
	service *usecase.EntitlementService
	ready   chan struct{}
}

func NewConsumer(cfg *config.Config, client *kgo.Client, service *usecase.EntitlementService) *Consumer {
	return &Consumer{
		client:  client,
		cfg:     cfg,
		service: service,
		ready:   make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	close(c.ready)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			log.Printf("Consumer poll errors: %v", errs)
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			c.processRecord(ctx, record)
		}

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			log.Printf("Failed to commit records: %v", err)
		}
	}
}

// StartRetry re-feeds records from the retry topics into their main request
// topic once their x-next-at deadline has passed.
func (c *Consumer) StartRetry(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			if nextAt, ok := retryNextAt(record); ok && time.Now().Before(nextAt) {
				time.Sleep(time.Until(nextAt))
			}

			mainTopic := strings.TrimSuffix(record.Topic, TopicRetrySuffix) + TopicRequestSuffix
			newRecord := &kgo.Record{
				Topic:   mainTopic,
				Key:     record.Key,
				Value:   record.Value,
				Headers: record.Headers,
			}
			if err := c.client.ProduceSync(ctx, newRecord).FirstErr(); err != nil {
				log.Printf("Failed to requeue retry record: %v", err)
			}
		}
		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			log.Printf("Failed to commit retry records: %v", err)
		}
	}
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicIssueRequest:
		c.handleIssue(ctx, record)
	case TopicBalanceRequest:
		c.handleBalance(ctx, record)
	case TopicRedeemRequest:
		c.handleRedeem(ctx, record)
	case TopicResetRequest:
		c.handleReset(ctx, record)
	}
}

func (c *Consumer) handleIssue(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendError(ctx, record, ErrCodeInvalidRequest, "invalid request payload")
		return
	}

	result, err := c.service.IssueEntitlement(ctx, req.UserID, req.OrderNumbers, req.AmountPaid)
	var finalResp *ResponsePayload
	if err != nil {
		code, message := errorCode(err)
		finalResp = errorResponse(req.CorrelationID, code, message)
	} else {
		finalResp = successResponse(req.CorrelationID, &ResultPayload{
			RecordID: result.RecordID,
			Granted:  result.Granted,
		})
	}

	c.sendResponse(ctx, req.ReplyTo, finalResp)
}

func (c *Consumer) handleBalance(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendError(ctx, record, ErrCodeInvalidRequest, "invalid request payload")
		return
	}

	balance, err := c.service.GetBalance(ctx, req.UserID)
	var finalResp *ResponsePayload
	if err != nil {
		code, message := errorCode(err)
		finalResp = errorResponse(req.CorrelationID, code, message)
	} else {
		finalResp = successResponse(req.CorrelationID, &ResultPayload{Balance: balance})
	}

	c.sendResponse(ctx, req.ReplyTo, finalResp)
}

func (c *Consumer) handleRedeem(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendError(ctx, record, ErrCodeInvalidRequest, "invalid request payload")
		return
	}

	remaining, err := c.service.Redeem(ctx, req.UserID)
	var finalResp *ResponsePayload
	if err != nil {
		code, message := errorCode(err)
		finalResp = errorResponse(req.CorrelationID, code, message)
	} else {
		finalResp = successResponse(req.CorrelationID, &ResultPayload{Remaining: remaining})
	}

	c.sendResponse(ctx, req.ReplyTo, finalResp)
}

func (c *Consumer) handleReset(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendError(ctx, record, ErrCodeInvalidRequest, "invalid request payload")
		return
	}

	affected, err := c.service.ResetToZero(ctx, req.UserID)
	var finalResp *ResponsePayload
	if err != nil {
		code, message := errorCode(err)
		finalResp = errorResponse(req.CorrelationID, code, message)
	} else {
		finalResp = successResponse(req.CorrelationID, &ResultPayload{Affected: affected})
	}

	c.sendResponse(ctx, req.ReplyTo, finalResp)
}

func (c *Consumer) sendResponse(ctx context.Context, topic string, resp *ResponsePayload) {
	payload, _ := json.Marshal(resp)
	record := &kgo.Record{
		Topic: topic,
		Value: payload,
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		log.Printf("Failed to send response to %s: %v", topic, err)
	}
}

func (c *Consumer) sendError(ctx context.Context, record *kgo.Record, code, message string) {
	var req RequestPayload
	_ = json.Unmarshal(record.Value, &req)

	resp := errorResponse(req.CorrelationID, code, message)
	if req.ReplyTo != "" {
		c.sendResponse(ctx, req.ReplyTo, resp)
	}

	dlqTopic := record.Topic + TopicDLQSuffix
	dlqRecord := &kgo.Record{
		Topic: dlqTopic,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: ErrorHeaderKey, Value: []byte(message)},
		},
	}
	_ = c.client.ProduceSync(ctx, dlqRecord).FirstErr()
}

func retryNextAt(record *kgo.Record) (time.Time, bool) {
	for _, header := range record.Headers {
		if header.Key != RetryHeaderNextAt {
			continue
		}
		nextAt, err := time.Parse(time.RFC3339, string(header.Value))
		if err != nil {
			return time.Time{}, false
		}
		return nextAt, true
	}

	return time.Time{}, false
}

func successResponse(correlationID string, result *ResultPayload) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusSuccess,
		Result:        result,
	}
}

func errorResponse(correlationID, code, message string) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusError,
		ErrorCode:     code,
		ErrorMessage:  message,
	}
}

// errorCode turns a service error into its stable wire code.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return ErrCodeMissingFields, err.Error()
	case errors.Is(err, domain.ErrInsufficientPayment):
		return ErrCodeInsufficientPayment, err.Error()
	case errors.Is(err, domain.ErrDuplicateOrder):
		return ErrCodeDuplicateOrder, err.Error()
	case errors.Is(err, domain.ErrAlreadyIssuedToday):
		return ErrCodeAlreadyIssuedToday, err.Error()
	case errors.Is(err, domain.ErrInsufficientBalance):
		return ErrCodeInsufficientBalance, err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return ErrCodeStoreUnavailable, err.Error()
	default:
		return ErrCodeInternalError, err.Error()
	}
}
