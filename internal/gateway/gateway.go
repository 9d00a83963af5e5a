// Package gateway holds the normalized vocabulary shared by every component
// of the fallback engine: gateway and payment-method identifiers, the
// normalized status and error-code sets, and the request/response contract
// every provider adapter must satisfy regardless of the wire format it talks
// to internally.
package gateway

// GatewayType identifies one supported provider integration.
type GatewayType string

const (
	Astra  GatewayType = "astra"
	Koin   GatewayType = "koin"
	Vectra GatewayType = "vectra"
	Brix   GatewayType = "brix"
)

// PaymentMethod is the closed set of payment methods a checkout can request.
type PaymentMethod string

const (
	MethodPix    PaymentMethod = "pix"
	MethodCard   PaymentMethod = "credit_card"
	MethodBoleto PaymentMethod = "boleto"
)

// Status is the normalized status vocabulary. Each adapter owns a private
// mapping from its provider's native vocabulary onto this set.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusAuthorized Status = "authorized"
	StatusRefused    Status = "refused"
	StatusRefunded   Status = "refunded"
	StatusChargeback Status = "chargeback"
	StatusCancelled  Status = "cancelled"
)

// ErrorCode is the normalized error vocabulary consumed by the classifier.
type ErrorCode string

const (
	// Business failures. Retrying elsewhere would not help and could create
	// duplicate authorization holds.
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCardDeclined      ErrorCode = "CARD_DECLINED"
	ErrInvalidCard       ErrorCode = "INVALID_CARD"
	ErrExpiredCard       ErrorCode = "EXPIRED_CARD"
	ErrSuspectedFraud    ErrorCode = "SUSPECTED_FRAUD"
	ErrInvalidDocument   ErrorCode = "INVALID_DOCUMENT"
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedMethod ErrorCode = "UNSUPPORTED_METHOD"

	// Technical failures, safe to retry on the same or another provider.
	ErrGateway            ErrorCode = "GATEWAY_ERROR"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrConnection         ErrorCode = "CONNECTION_ERROR"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrException          ErrorCode = "EXCEPTION"

	// ErrNoGateway is returned when no active gateway exists for the
	// requested payment method. Nothing was attempted.
	ErrNoGateway ErrorCode = "NO_GATEWAY"
)

// AttemptStatus is the lifecycle status of one attempt record.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)
