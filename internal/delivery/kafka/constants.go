package kafka

import "time"

const (
	TopicIssueRequest   = "entitlement.issue.req"
	TopicBalanceRequest = "entitlement.balance.req"
	TopicRedeemRequest  = "entitlement.redeem.req"
	TopicResetRequest   = "entitlement.reset.req"
	TopicIssueRetry     = "entitlement.issue.retry"
	TopicBalanceRetry   = "entitlement.balance.retry"
	TopicRedeemRetry    = "entitlement.redeem.retry"
	TopicResetRetry     = "entitlement.reset.retry"
	TopicReplyPrefix    = "entitlement.reply."
	TopicRequestSuffix  = ".req"
	TopicRetrySuffix    = ".retry"
	TopicDLQSuffix      = ".dlq"

	RequestTimeout = 3 * time.Second

	RetryHeaderNextAt = "x-next-at"
	ErrorHeaderKey    = "x-error"
)
