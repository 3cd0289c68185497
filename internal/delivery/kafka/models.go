package kafka

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

const (
	ErrCodeMissingFields       = "MISSING_FIELDS"
	ErrCodeInsufficientPayment = "INSUFFICIENT_PAYMENT"
	ErrCodeDuplicateOrder      = "DUPLICATE_ORDER"
	ErrCodeAlreadyIssuedToday  = "ALREADY_ISSUED_TODAY"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// RequestPayload is the union request shape shared by all four operations;
// each topic reads only the fields it needs.
type RequestPayload struct {
	SchemaVersion int      `json:"schema_version"`
	CorrelationID string   `json:"correlation_id"`
	ReplyTo       string   `json:"reply_to"`
	UserID        string   `json:"user_id,omitempty"`
	OrderNumbers  []string `json:"order_numbers,omitempty"`
	AmountPaid    int64    `json:"amount_paid,omitempty"`
}

// ResultPayload carries the success data; which fields are meaningful
// depends on the operation that was requested.
type ResultPayload struct {
	RecordID  string `json:"record_id,omitempty"`
	Granted   int    `json:"entitlements_granted"`
	Balance   int64  `json:"balance"`
	Remaining int    `json:"remaining"`
	Affected  int64  `json:"affected"`
}

type ResponsePayload struct {
	SchemaVersion int            `json:"schema_version"`
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Result        *ResultPayload `json:"result,omitempty"`
}
